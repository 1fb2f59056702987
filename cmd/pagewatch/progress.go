package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/reconcile"
	"github.com/dgallion1/pagewatch/internal/session"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pageStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// progressPrinter renders session notifications as terminal lines. A page is
// printed once its summary is final, which is when a later page or the end
// of the session has been seen.
type progressPrinter struct {
	w io.Writer

	mu        sync.Mutex
	announced bool
	extracted int
	printed   map[int]bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, printed: make(map[int]bool)}
}

func (p *progressPrinter) Notify(n session.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := n.Snapshot
	if !p.announced && snap.Metadata != nil {
		p.announced = true
		fmt.Fprintln(p.w, headerStyle.Render(fmt.Sprintf("%s (document %d)", snap.Metadata.Filename, snap.Metadata.ID)))
	}
	if snap.ExtractedPages > 0 && snap.ExtractedPages != p.extracted {
		p.extracted = snap.ExtractedPages
		fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf("extracted %d pages", p.extracted)))
	}

	switch n.Kind {
	case session.NotifySnapshot:
		pages := snap.SortedPages()
		// Every page but the last is settled once a later one appears.
		for i := 0; i < len(pages)-1; i++ {
			p.printPage(snap, pages[i])
		}
	case session.NotifyCompleted:
		for _, page := range snap.SortedPages() {
			p.printPage(snap, page)
		}
		fmt.Fprintln(p.w, headerStyle.Render(fmt.Sprintf("done: %d pages, %d section summaries", len(snap.Pages), len(snap.SectionSummaries))))
	case session.NotifyFailed:
		fmt.Fprintln(p.w, failStyle.Render("failed: "+n.Reason))
		if len(snap.Pages) > 0 {
			fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf("kept %d partial pages", len(snap.Pages))))
		}
	}
}

func (p *progressPrinter) printPage(snap reconcile.Snapshot, page document.Page) {
	if p.printed[page.PageNumber] {
		return
	}
	p.printed[page.PageNumber] = true

	heading := fmt.Sprintf("Page %d", page.PageNumber)
	if page.Title != "" {
		heading += ": " + page.Title
	}
	fmt.Fprintln(p.w, pageStyle.Render(heading))
	if s := strings.TrimSpace(page.Summary); s != "" {
		fmt.Fprintln(p.w, indent(s))
	}
	for _, ss := range snap.SectionSummariesForPage(page.PageNumber) {
		fmt.Fprintln(p.w, sectionStyle.Render("  "+ss.SectionTitle))
		if s := strings.TrimSpace(ss.Summary); s != "" {
			fmt.Fprintln(p.w, indent(s))
		}
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
