package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/reconcile"
)

// Format is an export format.
type Format string

const (
	Markdown Format = "markdown"
	HTML     Format = "html"
	DOCX     Format = "docx"
	JSON     Format = "json"
	YAML     Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{Markdown, HTML, DOCX, JSON, YAML}

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "markdown", "md":
		return Markdown, nil
	case "html", "htm":
		return HTML, nil
	case "docx":
		return DOCX, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unsupported format %q (want %s)", s, strings.Join(names, ", "))
}

// Extension returns the conventional file extension, with the dot.
func (f Format) Extension() string {
	if f == Markdown {
		return ".md"
	}
	return "." + string(f)
}

// Report is the export view of a snapshot: pages in page-number order, each
// carrying its own section summaries.
type Report struct {
	Document  *document.Metadata `json:"document" yaml:"document"`
	Completed bool               `json:"completed" yaml:"completed"`
	Pages     []Page             `json:"pages" yaml:"pages"`
	Sections  []document.Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

type Page struct {
	PageNumber       int              `json:"page_number" yaml:"page_number"`
	Title            string           `json:"title,omitempty" yaml:"title,omitempty"`
	Summary          string           `json:"summary" yaml:"summary"`
	SectionSummaries []SectionSummary `json:"section_summaries,omitempty" yaml:"section_summaries,omitempty"`
}

type SectionSummary struct {
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// Build converts a snapshot to a Report.
func Build(snap reconcile.Snapshot) Report {
	r := Report{
		Document:  snap.Selected,
		Completed: snap.Completed,
		Sections:  snap.Sections,
	}
	if r.Document == nil {
		r.Document = snap.Metadata
	}
	for _, p := range snap.SortedPages() {
		rp := Page{PageNumber: p.PageNumber, Title: p.Title, Summary: p.Summary}
		for _, ss := range snap.SectionSummariesForPage(p.PageNumber) {
			rp.SectionSummaries = append(rp.SectionSummaries, SectionSummary{Title: ss.SectionTitle, Summary: ss.Summary})
		}
		r.Pages = append(r.Pages, rp)
	}
	return r
}

// Title is the report heading.
func (r Report) Title() string {
	if r.Document != nil && r.Document.Filename != "" {
		return r.Document.Filename
	}
	return "Untitled document"
}

// Write renders snap to w in the given format.
func Write(w io.Writer, snap reconcile.Snapshot, format Format) error {
	r := Build(snap)
	switch format {
	case Markdown:
		_, err := io.WriteString(w, r.Markdown())
		return err
	case HTML:
		return r.writeHTML(w)
	case DOCX:
		return r.writeDOCX(w)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

// Markdown renders the report as Markdown. Summaries are already Markdown
// and are emitted as-is.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title())
	if r.Document != nil && r.Document.TotalPages > 0 {
		fmt.Fprintf(&b, "_%d pages_\n\n", r.Document.TotalPages)
	}
	for _, p := range r.Pages {
		fmt.Fprintf(&b, "## %s\n\n", pageHeading(p))
		if s := strings.TrimSpace(p.Summary); s != "" {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
		for _, ss := range p.SectionSummaries {
			fmt.Fprintf(&b, "### %s\n\n", ss.Title)
			if s := strings.TrimSpace(ss.Summary); s != "" {
				b.WriteString(s)
				b.WriteString("\n\n")
			}
		}
	}
	if len(r.Sections) > 0 {
		b.WriteString("## Sections\n\n")
		for _, s := range r.Sections {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.Title, strings.TrimSpace(s.Summary))
		}
	}
	return b.String()
}

func (r Report) writeHTML(w io.Writer) error {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(r.Markdown()), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(r.Title()))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	_, err := w.Write(b.Bytes())
	return err
}

func (r Report) writeDOCX(w io.Writer) error {
	d := docx.New().WithDefaultTheme()
	d.AddParagraph().AddText(r.Title()).Bold().Size("36")
	for _, p := range r.Pages {
		d.AddParagraph().AddText(pageHeading(p)).Bold().Size("28")
		addParagraphs(d, p.Summary)
		for _, ss := range p.SectionSummaries {
			d.AddParagraph().AddText(ss.Title).Bold().Size("24")
			addParagraphs(d, ss.Summary)
		}
	}
	for _, s := range r.Sections {
		d.AddParagraph().AddText(s.Title).Bold().Size("24")
		addParagraphs(d, s.Summary)
	}
	if _, err := d.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// addParagraphs writes text as one paragraph per blank-line separated block.
func addParagraphs(d *docx.Docx, text string) {
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			d.AddParagraph().AddText(block)
		}
	}
}

func pageHeading(p Page) string {
	h := "Page " + strconv.Itoa(p.PageNumber)
	if p.Title != "" {
		h += ": " + p.Title
	}
	return h
}
