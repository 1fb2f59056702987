package reconcile

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/stream"
)

// Snapshot is a read-only view of the store. Collections are never mutated
// after a snapshot is taken; a later change always produces a new slice.
type Snapshot struct {
	Revision         uint64                    `json:"revision"`
	Metadata         *document.Metadata        `json:"metadata"`
	Selected         *document.Metadata        `json:"selected"`
	ExtractedPages   int                       `json:"extracted_pages"`
	Pages            []document.Page           `json:"pages"`
	Sections         []document.Section        `json:"sections"`
	SectionSummaries []document.SectionSummary `json:"section_summaries"`
	Completed        bool                      `json:"completed"`
}

// Outcome reports what applying one event did.
type Outcome struct {
	Changed   bool
	Completed bool
}

// Store owns the merged collections for a single session. Writers are the
// session goroutine; readers may snapshot concurrently.
type Store struct {
	mu sync.RWMutex

	revision       uint64
	metadata       *document.Metadata
	selected       *document.Metadata
	extractedPages int
	completed      bool

	pages     []document.Page
	pageIndex map[int]int // page number -> index in pages

	sections     []document.Section
	sectionIndex map[document.Key]int

	sectionSummaries []document.SectionSummary

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		pageIndex:    make(map[int]int),
		sectionIndex: make(map[document.Key]int),
		now:          time.Now,
	}
}

// Apply dispatches a decoded event to the matching operation.
func (s *Store) Apply(ev stream.Event) (Outcome, error) {
	switch e := ev.(type) {
	case stream.Metadata:
		s.ApplyMetadata(e.Document)
	case stream.ExtractionComplete:
		s.ApplyExtractionComplete(e.TotalPages)
	case stream.PageUpdate:
		s.ApplyPageUpdate(e)
	case stream.SectionUpdate:
		s.ApplySectionUpdate(e)
	case stream.SectionSummary:
		s.ApplySectionSummary(e)
	case stream.Complete:
		return Outcome{Completed: s.ApplyComplete()}, nil
	default:
		return Outcome{}, fmt.Errorf("unsupported event %T", ev)
	}
	return Outcome{Changed: true}, nil
}

// ApplyMetadata records the document metadata and selects it.
func (s *Store) ApplyMetadata(meta document.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := meta
	s.metadata = &m
	s.selected = &m
	s.revision++
}

// ApplyExtractionComplete records the extracted page count.
func (s *Store) ApplyExtractionComplete(totalPages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractedPages = totalPages
	s.revision++
}

// ApplyPageUpdate upserts a page by page number.
func (s *Store) ApplyPageUpdate(u stream.PageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.pageIndex[u.PageNumber]
	if !ok {
		s.pages = append(slices.Clip(s.pages), document.Page{
			PageID:     u.PageID,
			PageNumber: u.PageNumber,
			Title:      u.Title,
			Summary:    u.Summary,
			Content:    u.Content,
		})
		s.pageIndex[u.PageNumber] = len(s.pages) - 1
		s.revision++
		return
	}

	pages := slices.Clone(s.pages)
	p := pages[idx]
	if p.PageID == 0 {
		p.PageID = u.PageID
	}
	p.Title = u.TitlePolicy.Merge(p.Title, u.Title)
	p.Content = u.ContentPolicy.Merge(p.Content, u.Content)
	p.Summary = u.SummaryPolicy.Merge(p.Summary, u.Summary)
	pages[idx] = p
	s.pages = pages
	s.revision++
}

// ApplySectionUpdate upserts a legacy section, accumulating its summary.
func (s *Store) ApplySectionUpdate(u stream.SectionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.sectionIndex[u.SectionID]
	if !ok {
		s.sections = append(slices.Clip(s.sections), document.Section{
			SectionID: u.SectionID,
			Title:     u.Title,
			Summary:   u.Summary,
		})
		s.sectionIndex[u.SectionID] = len(s.sections) - 1
		s.revision++
		return
	}

	sections := slices.Clone(s.sections)
	sections[idx].Summary = stream.Accumulate.Merge(sections[idx].Summary, u.Summary)
	s.sections = sections
	s.revision++
}

// ApplySectionSummary appends a section summary. Ids are not deduplicated.
func (s *Store) ApplySectionSummary(u stream.SectionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectionSummaries = append(slices.Clip(s.sectionSummaries), document.SectionSummary{
		ID:           u.SectionID,
		PageNumber:   u.PageNumber,
		SectionTitle: u.SectionTitle,
		Summary:      u.Summary,
		CreatedAt:    s.now().UTC(),
	})
	s.revision++
}

// ApplyComplete marks the session complete. It returns true only for the
// first completion since the last reset.
func (s *Store) ApplyComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	s.revision++
	return true
}

// Reset discards all collections.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.metadata = nil
	s.selected = nil
	s.extractedPages = 0
	s.completed = false
	s.pages = nil
	s.pageIndex = make(map[int]int)
	s.sections = nil
	s.sectionIndex = make(map[document.Key]int)
	s.sectionSummaries = nil
	s.revision++
}

// Load replaces the store's contents with a finalized document.
func (s *Store) Load(d document.Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()

	m := d.Metadata
	s.metadata = &m
	s.selected = &m
	s.extractedPages = m.TotalPages
	s.completed = true

	// Duplicate page numbers keep the last record.
	for _, p := range d.Pages {
		if idx, ok := s.pageIndex[p.PageNumber]; ok {
			s.pages[idx] = p
			continue
		}
		s.pages = append(s.pages, p)
		s.pageIndex[p.PageNumber] = len(s.pages) - 1
	}
	for _, sec := range d.Sections {
		if idx, ok := s.sectionIndex[sec.SectionID]; ok {
			s.sections[idx] = sec
			continue
		}
		s.sections = append(s.sections, sec)
		s.sectionIndex[sec.SectionID] = len(s.sections) - 1
	}
	s.sectionSummaries = slices.Clone(d.SectionSummaries)
	s.revision++
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Revision:         s.revision,
		Metadata:         copyMeta(s.metadata),
		Selected:         copyMeta(s.selected),
		ExtractedPages:   s.extractedPages,
		Pages:            s.pages,
		Sections:         s.sections,
		SectionSummaries: s.sectionSummaries,
		Completed:        s.completed,
	}
}

// Page returns the page with the given number.
func (s *Store) Page(number int) (document.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.pageIndex[number]
	if !ok {
		return document.Page{}, false
	}
	return s.pages[idx], true
}

// SectionSummariesForPage returns the section summaries attached to a page,
// in arrival order.
func (snap Snapshot) SectionSummariesForPage(number int) []document.SectionSummary {
	var out []document.SectionSummary
	for _, ss := range snap.SectionSummaries {
		if ss.PageNumber == number {
			out = append(out, ss)
		}
	}
	return out
}

// SortedPages returns the pages ordered by page number.
func (snap Snapshot) SortedPages() []document.Page {
	pages := slices.Clone(snap.Pages)
	slices.SortStableFunc(pages, func(a, b document.Page) int {
		return a.PageNumber - b.PageNumber
	})
	return pages
}

func copyMeta(m *document.Metadata) *document.Metadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
