package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/reconcile"
)

func testSnapshot() reconcile.Snapshot {
	meta := &document.Metadata{ID: 3, Filename: "Q&A notes.pdf", TotalPages: 2}
	return reconcile.Snapshot{
		Metadata: meta,
		Selected: meta,
		Pages: []document.Page{
			{PageNumber: 2, Title: "Methods", Summary: "We measured **things**."},
			{PageNumber: 1, Title: "Intro", Summary: "First paragraph.\n\nSecond paragraph."},
		},
		SectionSummaries: []document.SectionSummary{
			{ID: "1", PageNumber: 2, SectionTitle: "2.1 Setup", Summary: "Setup notes."},
			{ID: "2", PageNumber: 1, SectionTitle: "1.1 Scope", Summary: "Scope notes."},
		},
		Completed: true,
	}
}

func TestBuild_OrdersPagesAndAttachesSectionSummaries(t *testing.T) {
	r := Build(testSnapshot())
	if len(r.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(r.Pages))
	}
	if r.Pages[0].PageNumber != 1 || r.Pages[1].PageNumber != 2 {
		t.Errorf("expected pages ordered 1,2, got %d,%d", r.Pages[0].PageNumber, r.Pages[1].PageNumber)
	}
	if len(r.Pages[1].SectionSummaries) != 1 || r.Pages[1].SectionSummaries[0].Title != "2.1 Setup" {
		t.Errorf("unexpected section summaries on page 2: %+v", r.Pages[1].SectionSummaries)
	}
	if !r.Completed {
		t.Error("expected completed report")
	}
}

func TestBuild_EmptySnapshot(t *testing.T) {
	r := Build(reconcile.Snapshot{})
	if r.Title() != "Untitled document" {
		t.Errorf("expected placeholder title, got %q", r.Title())
	}
	if len(r.Pages) != 0 {
		t.Errorf("expected no pages, got %d", len(r.Pages))
	}
}

func TestWrite_Markdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testSnapshot(), Markdown); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	first := strings.Index(out, "## Page 1: Intro")
	second := strings.Index(out, "## Page 2: Methods")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected page headings in order, got:\n%s", out)
	}
	if !strings.Contains(out, "### 2.1 Setup\n\nSetup notes.") {
		t.Errorf("expected section summary block, got:\n%s", out)
	}
}

// headings collects the text of h1-h3 elements.
func headings(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "h1" || n.Data == "h2" || n.Data == "h3") {
			out = append(out, textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func TestWrite_HTML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testSnapshot(), HTML); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<title>Q&amp;A notes.pdf</title>") {
		t.Errorf("expected escaped title, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "<strong>things</strong>") {
		t.Errorf("expected markdown summary to be rendered, got:\n%s", buf.String())
	}

	doc, err := html.Parse(&buf)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	got := headings(doc)
	want := []string{"Q&A notes.pdf", "Page 1: Intro", "1.1 Scope", "Page 2: Methods", "2.1 Setup"}
	if len(got) != len(want) {
		t.Fatalf("expected headings %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("heading %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func docxParagraphs(doc *docx.Docx) []string {
	var out []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		var buf strings.Builder
		for _, child := range para.Children {
			run, ok := child.(*docx.Run)
			if !ok {
				continue
			}
			for _, rc := range run.Children {
				if t, ok := rc.(*docx.Text); ok {
					buf.WriteString(t.Text)
				}
			}
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func TestWrite_DOCX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testSnapshot(), DOCX); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, err := docx.Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parse docx: %v", err)
	}
	paras := docxParagraphs(doc)
	want := []string{
		"Q&A notes.pdf",
		"Page 1: Intro", "First paragraph.", "Second paragraph.",
		"1.1 Scope", "Scope notes.",
		"Page 2: Methods", "We measured **things**.",
		"2.1 Setup", "Setup notes.",
	}
	if len(paras) != len(want) {
		t.Fatalf("expected paragraphs %q, got %q", want, paras)
	}
	for i := range want {
		if paras[i] != want[i] {
			t.Errorf("paragraph %d: expected %q, got %q", i, want[i], paras[i])
		}
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testSnapshot(), JSON); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var r Report
	if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Document == nil || r.Document.ID != 3 || len(r.Pages) != 2 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testSnapshot(), YAML); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var r Report
	if err := yaml.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Pages[0].Title != "Intro" || r.Pages[1].SectionSummaries[0].Summary != "Setup notes." {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, testSnapshot(), Format("pdf")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"md", Markdown},
		{"markdown", Markdown},
		{".HTML", HTML},
		{"docx", DOCX},
		{"yml", YAML},
		{"json", JSON},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseFormat(%q): expected %q, got %q (%v)", tc.in, tc.want, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil || !strings.Contains(err.Error(), "markdown, html, docx, json, yaml") {
		t.Errorf("expected error listing formats, got %v", err)
	}
	if Markdown.Extension() != ".md" || DOCX.Extension() != ".docx" {
		t.Error("unexpected extensions")
	}
}
