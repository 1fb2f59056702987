package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/stream"
)

func pageEvent(num int, summary string, streaming bool) stream.PageUpdate {
	u := stream.PageUpdate{
		PageNumber:    num,
		Summary:       summary,
		Streaming:     streaming,
		TitlePolicy:   stream.FillIfEmpty,
		SummaryPolicy: stream.ReplaceIfPresent,
		ContentPolicy: stream.ReplaceIfPresent,
	}
	if streaming {
		u.SummaryPolicy = stream.Accumulate
	}
	return u
}

func applyFrames(t *testing.T, s *Store, frames ...string) {
	t.Helper()
	for _, f := range frames {
		ev, err := stream.Decode(f)
		if err != nil {
			t.Fatalf("decode %q: %v", f, err)
		}
		if _, err := s.Apply(ev); err != nil {
			t.Fatalf("apply %q: %v", f, err)
		}
	}
}

func TestStore_StreamingExample(t *testing.T) {
	chunks := []string{
		"data: {\"type\":\"metadata\",\"data\":{\"id\":1}}\n\n",
		"data: {\"page_num\":1,\"summary\":\"A\",\"streaming\":true}\n\nda",
		"ta: {\"page_num\":1,\"summary\":\"B\",\"streaming\":true}\n\n",
	}
	var sp stream.Splitter
	s := NewStore()
	for _, c := range chunks {
		applyFrames(t, s, sp.Push([]byte(c))...)
	}

	snap := s.Snapshot()
	if snap.Metadata == nil || snap.Metadata.ID != 1 {
		t.Fatalf("expected metadata id 1, got %+v", snap.Metadata)
	}
	if len(snap.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(snap.Pages))
	}
	if snap.Pages[0].PageNumber != 1 || snap.Pages[0].Summary != "AB" {
		t.Errorf("expected page 1 summary %q, got %+v", "AB", snap.Pages[0])
	}
}

func TestStore_NonStreamingIsIdempotent(t *testing.T) {
	s := NewStore()
	ev := pageEvent(2, "whole summary", false)
	s.ApplyPageUpdate(ev)
	s.ApplyPageUpdate(ev)

	p, ok := s.Page(2)
	if !ok {
		t.Fatal("expected page 2 to exist")
	}
	if p.Summary != "whole summary" {
		t.Errorf("expected summary not duplicated, got %q", p.Summary)
	}
}

func TestStore_StreamingAccumulatesInOrder(t *testing.T) {
	s := NewStore()
	fragments := []string{"The ", "paper ", "studies ", "streams."}
	for _, f := range fragments {
		s.ApplyPageUpdate(pageEvent(5, f, true))
	}
	p, _ := s.Page(5)
	if want := strings.Join(fragments, ""); p.Summary != want {
		t.Errorf("expected %q, got %q", want, p.Summary)
	}
}

func TestStore_PageCollectionSize(t *testing.T) {
	s := NewStore()
	for i, num := range []int{1, 2, 1, 3, 2, 3, 4} {
		before := len(s.Snapshot().Pages)
		_, seen := s.Page(num)
		s.ApplyPageUpdate(pageEvent(num, "x", true))
		after := len(s.Snapshot().Pages)
		if seen && after != before {
			t.Errorf("step %d: seen page %d changed size %d -> %d", i, num, before, after)
		}
		if !seen && after != before+1 {
			t.Errorf("step %d: new page %d changed size %d -> %d", i, num, before, after)
		}
	}
	if n := len(s.Snapshot().Pages); n != 4 {
		t.Errorf("expected 4 unique pages, got %d", n)
	}
}

func TestStore_FieldRules(t *testing.T) {
	s := NewStore()
	first := pageEvent(1, "", false)
	first.PageID = 10
	first.Title = "1. Introduction"
	first.Content = "first content"
	s.ApplyPageUpdate(first)

	second := pageEvent(1, "final", false)
	second.Title = "Other Title"
	second.Content = ""
	s.ApplyPageUpdate(second)

	p, _ := s.Page(1)
	if p.Title != "1. Introduction" {
		t.Errorf("expected title kept once populated, got %q", p.Title)
	}
	if p.Content != "first content" {
		t.Errorf("expected content kept when update has none, got %q", p.Content)
	}
	if p.Summary != "final" {
		t.Errorf("expected summary %q, got %q", "final", p.Summary)
	}
	if p.PageID != 10 {
		t.Errorf("expected page id 10, got %d", p.PageID)
	}

	third := pageEvent(1, "", false)
	third.Content = "replaced content"
	s.ApplyPageUpdate(third)
	p, _ = s.Page(1)
	if p.Content != "replaced content" {
		t.Errorf("expected content replaced, got %q", p.Content)
	}
	if p.Summary != "final" {
		t.Errorf("expected summary not reverted to empty, got %q", p.Summary)
	}
}

func TestStore_TitleFilledWhenEmpty(t *testing.T) {
	s := NewStore()
	s.ApplyPageUpdate(pageEvent(3, "", false))
	u := pageEvent(3, "", false)
	u.Title = "3. Method"
	s.ApplyPageUpdate(u)
	p, _ := s.Page(3)
	if p.Title != "3. Method" {
		t.Errorf("expected empty title to be filled, got %q", p.Title)
	}
}

func TestStore_StreamThenFinalReplace(t *testing.T) {
	s := NewStore()
	s.ApplyPageUpdate(pageEvent(1, "Par", true))
	s.ApplyPageUpdate(pageEvent(1, "tial", true))
	s.ApplyPageUpdate(pageEvent(1, "Partial", false))
	p, _ := s.Page(1)
	if p.Summary != "Partial" {
		t.Errorf("expected final summary to replace accumulated text, got %q", p.Summary)
	}
}

func TestStore_SnapshotsAreStructurallyReplaced(t *testing.T) {
	s := NewStore()
	s.ApplyPageUpdate(pageEvent(1, "A", true))
	before := s.Snapshot()

	s.ApplyPageUpdate(pageEvent(1, "B", true))
	after := s.Snapshot()

	if before.Pages[0].Summary != "A" {
		t.Errorf("expected earlier snapshot untouched, got %q", before.Pages[0].Summary)
	}
	if after.Pages[0].Summary != "AB" {
		t.Errorf("expected new snapshot to have %q, got %q", "AB", after.Pages[0].Summary)
	}
	if &before.Pages[0] == &after.Pages[0] {
		t.Error("expected page collection to be a new slice after update")
	}
	if after.Revision <= before.Revision {
		t.Errorf("expected revision to advance, got %d -> %d", before.Revision, after.Revision)
	}

	s.ApplyPageUpdate(pageEvent(2, "C", true))
	grown := s.Snapshot()
	if len(after.Pages) != 1 {
		t.Errorf("expected earlier snapshot length unchanged, got %d", len(after.Pages))
	}
	if &grown.Pages[0] == &after.Pages[0] {
		t.Error("expected append to produce a new slice")
	}
}

func TestStore_SectionSummariesAlwaysAppend(t *testing.T) {
	s := NewStore()
	const k = 5
	for i := 0; i < k; i++ {
		s.ApplySectionSummary(stream.SectionSummary{SectionID: "dup", PageNumber: 1, SectionTitle: "1.1", Summary: "s"})
	}
	snap := s.Snapshot()
	if len(snap.SectionSummaries) != k {
		t.Errorf("expected %d section summaries, got %d", k, len(snap.SectionSummaries))
	}
}

func TestStore_SectionSummaryTimestamp(t *testing.T) {
	s := NewStore()
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.ApplySectionSummary(stream.SectionSummary{SectionID: "a", PageNumber: 2})
	if got := s.Snapshot().SectionSummaries[0].CreatedAt; !got.Equal(fixed) {
		t.Errorf("expected received-at %v, got %v", fixed, got)
	}
}

func TestStore_LegacySectionsAccumulate(t *testing.T) {
	s := NewStore()
	s.ApplySectionUpdate(stream.SectionUpdate{SectionID: "1", Title: "Abstract", Summary: "We "})
	s.ApplySectionUpdate(stream.SectionUpdate{SectionID: "1", Title: "ignored", Summary: "propose."})
	s.ApplySectionUpdate(stream.SectionUpdate{SectionID: "2", Title: "Method", Summary: ""})

	snap := s.Snapshot()
	if len(snap.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(snap.Sections))
	}
	if snap.Sections[0].Summary != "We propose." || snap.Sections[0].Title != "Abstract" {
		t.Errorf("unexpected section: %+v", snap.Sections[0])
	}
}

func TestStore_MetadataSelectsDocument(t *testing.T) {
	s := NewStore()
	s.ApplyMetadata(document.Metadata{ID: 4, Filename: "a.pdf", TotalPages: 2})
	s.ApplyExtractionComplete(2)
	snap := s.Snapshot()
	if snap.Selected == nil || snap.Selected.ID != 4 {
		t.Errorf("expected selected document 4, got %+v", snap.Selected)
	}
	if snap.ExtractedPages != 2 {
		t.Errorf("expected 2 extracted pages, got %d", snap.ExtractedPages)
	}
	// Snapshot copies metadata.
	snap.Metadata.Filename = "mutated"
	if s.Snapshot().Metadata.Filename != "a.pdf" {
		t.Error("expected snapshot metadata to be a copy")
	}
}

func TestStore_CompleteOnlyOnce(t *testing.T) {
	s := NewStore()
	out, err := s.Apply(stream.Complete{})
	if err != nil || !out.Completed {
		t.Fatalf("expected first complete to report completion, got %+v %v", out, err)
	}
	out, _ = s.Apply(stream.Complete{})
	if out.Completed {
		t.Error("expected second complete to be ignored")
	}
	s.Reset()
	if !s.ApplyComplete() {
		t.Error("expected completion to be reported again after reset")
	}
}

func TestStore_ExtractionCompleteLeavesPages(t *testing.T) {
	s := NewStore()
	s.ApplyPageUpdate(pageEvent(1, "x", false))
	s.ApplyExtractionComplete(9)
	if n := len(s.Snapshot().Pages); n != 1 {
		t.Errorf("expected pages unchanged, got %d", n)
	}
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s := NewStore()
	s.ApplyMetadata(document.Metadata{ID: 1})
	s.ApplyPageUpdate(pageEvent(1, "x", false))
	s.ApplySectionUpdate(stream.SectionUpdate{SectionID: "1", Title: "t"})
	s.ApplySectionSummary(stream.SectionSummary{SectionID: "1"})
	s.Reset()

	snap := s.Snapshot()
	if snap.Metadata != nil || len(snap.Pages) != 0 || len(snap.Sections) != 0 || len(snap.SectionSummaries) != 0 {
		t.Errorf("expected empty store after reset, got %+v", snap)
	}
	s.ApplyPageUpdate(pageEvent(1, "y", false))
	if n := len(s.Snapshot().Pages); n != 1 {
		t.Errorf("expected page index cleared by reset, got %d pages", n)
	}
}

func TestStore_LoadReplacesWholesale(t *testing.T) {
	s := NewStore()
	s.ApplyPageUpdate(pageEvent(9, "stale", false))
	s.Load(document.Detail{
		Metadata: document.Metadata{ID: 3, TotalPages: 2},
		Pages: []document.Page{
			{PageNumber: 1, Summary: "one"},
			{PageNumber: 2, Summary: "two"},
			{PageNumber: 1, Summary: "one again"},
		},
		SectionSummaries: []document.SectionSummary{{ID: "1", PageNumber: 2}},
	})

	snap := s.Snapshot()
	if len(snap.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(snap.Pages))
	}
	if _, ok := s.Page(9); ok {
		t.Error("expected stale page to be discarded")
	}
	if p, _ := s.Page(1); p.Summary != "one again" {
		t.Errorf("expected last write to win for duplicate page, got %q", p.Summary)
	}
	if !snap.Completed {
		t.Error("expected loaded document to be complete")
	}
	if got := snap.SectionSummariesForPage(2); len(got) != 1 {
		t.Errorf("expected 1 section summary for page 2, got %d", len(got))
	}
}

func TestSnapshot_SortedPages(t *testing.T) {
	s := NewStore()
	for _, n := range []int{3, 1, 2} {
		s.ApplyPageUpdate(pageEvent(n, "", false))
	}
	snap := s.Snapshot()
	sorted := snap.SortedPages()
	for i, p := range sorted {
		if p.PageNumber != i+1 {
			t.Errorf("position %d: expected page %d, got %d", i, i+1, p.PageNumber)
		}
	}
	if snap.Pages[0].PageNumber != 3 {
		t.Error("expected SortedPages not to reorder the snapshot")
	}
}
