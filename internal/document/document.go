package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata describes an uploaded PDF. It is emitted once per upload session.
type Metadata struct {
	ID            int64  `json:"id" yaml:"id"`
	Filename      string `json:"filename" yaml:"filename"`
	UploadDate    string `json:"upload_date" yaml:"upload_date"` // producer's naive ISO-8601 string
	SectionsCount int    `json:"sections_count" yaml:"sections_count"`
	TotalPages    int    `json:"total_pages" yaml:"total_pages"`
}

// Page is the reconciled state of one page, keyed by PageNumber.
type Page struct {
	PageID     int64  `json:"page_id" yaml:"page_id"`
	PageNumber int    `json:"page_number" yaml:"page_number"`
	Title      string `json:"title" yaml:"title"`
	Summary    string `json:"summary" yaml:"summary"`
	Content    string `json:"content" yaml:"content"`
}

// SectionSummary is a per-heading summary attached to a page.
type SectionSummary struct {
	ID           Key       `json:"id" yaml:"id"`
	PageNumber   int       `json:"page_number" yaml:"page_number"`
	SectionTitle string    `json:"section_title" yaml:"section_title"`
	Summary      string    `json:"summary" yaml:"summary"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Section is the legacy whole-paper section record.
type Section struct {
	SectionID Key    `json:"section_id" yaml:"section_id"`
	Title     string `json:"title" yaml:"title"`
	Summary   string `json:"summary" yaml:"summary"`
}

// Detail is a finalized document as served by the history endpoint.
type Detail struct {
	Metadata         Metadata         `json:"pdf" yaml:"pdf"`
	Pages            []Page           `json:"pages" yaml:"pages"`
	Sections         []Section        `json:"sections" yaml:"sections"`
	SectionSummaries []SectionSummary `json:"section_summaries" yaml:"section_summaries"`
}

// Key is an identifier that may arrive as a JSON number or a JSON string.
type Key string

func (k *Key) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*k = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("key must be a string or number: %w", err)
	}
	*k = Key(n.String())
	return nil
}
