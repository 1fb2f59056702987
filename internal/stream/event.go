package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/pagewatch/internal/document"
)

// Kind discriminates decoded events.
type Kind int

const (
	KindMetadata Kind = iota + 1
	KindExtractionComplete
	KindPageUpdate
	KindSectionUpdate
	KindSectionSummary
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindExtractionComplete:
		return "extraction_complete"
	case KindPageUpdate:
		return "page_update"
	case KindSectionUpdate:
		return "section_update"
	case KindSectionSummary:
		return "section_summary"
	case KindComplete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the typed meaning of one frame. The concrete types below are the
// only implementations.
type Event interface {
	Kind() Kind
	isEvent()
}

// Metadata carries the document metadata for the session.
type Metadata struct {
	Document document.Metadata
}

// ExtractionComplete marks the end of page extraction.
type ExtractionComplete struct {
	TotalPages int
}

// PageUpdate is a partial update for one page. Each text field carries the
// policy used to merge it into the existing record.
type PageUpdate struct {
	PageID     int64
	PageNumber int
	Title      string
	Summary    string
	Content    string
	Streaming  bool
	// Failed is set when the producer reports that summarizing this page
	// failed; Summary then holds the producer's message.
	Failed bool

	TitlePolicy   Policy
	SummaryPolicy Policy
	ContentPolicy Policy
}

// SectionUpdate is the legacy whole-paper section delta.
type SectionUpdate struct {
	SectionID document.Key
	Title     string
	Summary   string
}

// SectionSummary is a complete per-heading summary for a page.
type SectionSummary struct {
	SectionID    document.Key
	PageNumber   int
	SectionTitle string
	Summary      string
}

// Complete is the terminal marker.
type Complete struct{}

func (Metadata) Kind() Kind           { return KindMetadata }
func (ExtractionComplete) Kind() Kind { return KindExtractionComplete }
func (PageUpdate) Kind() Kind         { return KindPageUpdate }
func (SectionUpdate) Kind() Kind      { return KindSectionUpdate }
func (SectionSummary) Kind() Kind     { return KindSectionSummary }
func (Complete) Kind() Kind           { return KindComplete }

func (Metadata) isEvent()           {}
func (ExtractionComplete) isEvent() {}
func (PageUpdate) isEvent()         {}
func (SectionUpdate) isEvent()      {}
func (SectionSummary) isEvent()     {}
func (Complete) isEvent()           {}

var (
	// ErrMissingPageNumber is returned for payloads shaped like a page
	// update that carry no page number.
	ErrMissingPageNumber = errors.New("page update without page_num")
	// ErrUnknownEvent is returned for well-formed payloads that match no
	// event kind.
	ErrUnknownEvent = errors.New("unrecognized event payload")
)

// UpstreamError is a producer-side failure reported in-band.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "upstream error: " + e.Message
}

// DecodeError wraps a failure to decode a single frame.
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %s", truncate(e.Frame, 200), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// payload is the union of every field the producer sends.
type payload struct {
	Type       string             `json:"type"`
	Data       *document.Metadata `json:"data"`
	TotalPages int                `json:"total_pages"`

	PageNum   int     `json:"page_num"`
	PageID    int64   `json:"page_id"`
	Title     *string `json:"title"`
	Summary   *string `json:"summary"`
	Content   *string `json:"content"`
	Streaming *bool   `json:"streaming"`

	Section      string       `json:"section"`
	SectionID    document.Key `json:"section_id"`
	SectionTitle string       `json:"section_title"`

	Error json.RawMessage `json:"error"`
}

// Decode parses one frame. Frames without a data line decode to (nil, nil)
// and should be skipped. Any other failure is a *DecodeError; the stream
// itself is unaffected.
func Decode(frame string) (Event, error) {
	data, ok := dataField(frame)
	if !ok {
		return nil, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}

	ev, err := classify(&p)
	if err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	return ev, nil
}

func classify(p *payload) (Event, error) {
	switch p.Type {
	case "metadata":
		if p.Data == nil {
			return nil, errors.New("metadata event without data")
		}
		return Metadata{Document: *p.Data}, nil
	case "extraction_complete":
		return ExtractionComplete{TotalPages: p.TotalPages}, nil
	case "section_summary":
		return SectionSummary{
			SectionID:    p.SectionID,
			PageNumber:   p.PageNum,
			SectionTitle: p.SectionTitle,
			Summary:      deref(p.Summary),
		}, nil
	case "complete":
		return Complete{}, nil
	}

	if p.PageNum != 0 {
		return pageUpdate(p), nil
	}
	if p.Section != "" {
		return SectionUpdate{
			SectionID: p.SectionID,
			Title:     p.Section,
			Summary:   deref(p.Summary),
		}, nil
	}
	if p.looksLikePage() {
		return nil, ErrMissingPageNumber
	}
	if msg, ok := p.errorMessage(); ok {
		return nil, &UpstreamError{Message: msg}
	}
	return nil, ErrUnknownEvent
}

func pageUpdate(p *payload) PageUpdate {
	streaming := p.Streaming != nil && *p.Streaming
	u := PageUpdate{
		PageID:        p.PageID,
		PageNumber:    p.PageNum,
		Title:         deref(p.Title),
		Summary:       deref(p.Summary),
		Content:       deref(p.Content),
		Streaming:     streaming,
		TitlePolicy:   FillIfEmpty,
		SummaryPolicy: ReplaceIfPresent,
		ContentPolicy: ReplaceIfPresent,
	}
	if streaming {
		u.SummaryPolicy = Accumulate
	}
	if _, ok := p.errorMessage(); ok {
		u.Failed = true
	}
	return u
}

func (p *payload) looksLikePage() bool {
	return p.PageID != 0 || p.Title != nil || p.Summary != nil || p.Content != nil || p.Streaming != nil
}

// errorMessage reports the producer's error field, which is either a
// message string or a boolean flag.
func (p *payload) errorMessage() (string, bool) {
	if len(p.Error) == 0 || string(p.Error) == "null" || string(p.Error) == "false" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s, true
	}
	return string(p.Error), true
}

// dataField returns the joined data lines of a frame.
func dataField(frame string) (string, bool) {
	var lines []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon || field != "data" {
			continue
		}
		lines = append(lines, strings.TrimPrefix(value, " "))
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
