package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/reconcile"
	"github.com/dgallion1/pagewatch/internal/stream"
	"github.com/dgallion1/pagewatch/internal/upload"
)

// ErrCancelled is the failure reason of a session stopped by Cancel, by a
// newer session or by its parent context.
var ErrCancelled = errors.New("session cancelled")

// State is the lifecycle state of the current session.
type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StreamOpener uploads a file and returns its event stream.
type StreamOpener interface {
	OpenStream(ctx context.Context, file *upload.File) (io.ReadCloser, error)
}

// DocumentSource fetches a finalized document.
type DocumentSource interface {
	GetDocument(ctx context.Context, id int64) (*document.Detail, error)
}

// Status describes the current session.
type Status struct {
	SessionID     string    `json:"session_id,omitempty"`
	State         State     `json:"state"`
	Filename      string    `json:"filename,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
	EventsApplied int       `json:"events_applied"`
	DecodeErrors  int       `json:"decode_errors"`
}

// Controller owns the store and the single active session.
type Controller struct {
	opener StreamOpener
	docs   DocumentSource
	store  *reconcile.Store
	stats  *StreamStats
	log    *slog.Logger

	// startMu serializes Start, LoadDocument and Reset.
	startMu sync.Mutex

	mu        sync.Mutex
	status    Status
	current   *run
	observers map[int]Observer
	nextObs   int
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	body   io.ReadCloser

	opened    time.Time
	lastEvent time.Time
}

func NewController(opener StreamOpener, docs DocumentSource, stats *StreamStats, log *slog.Logger) *Controller {
	if stats == nil {
		stats = NewStreamStats(time.Hour)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		opener:    opener,
		docs:      docs,
		store:     reconcile.NewStore(),
		stats:     stats,
		log:       log,
		status:    Status{State: StateIdle},
		observers: make(map[int]Observer),
	}
}

// Subscribe registers o for notifications and returns a function that
// removes it.
func (c *Controller) Subscribe(o Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = o
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Start cancels any live session, resets the store and begins streaming
// file in the background. ctx bounds the lifetime of the session, not just
// the call.
func (c *Controller) Start(ctx context.Context, file *upload.File) (string, error) {
	if file == nil {
		return "", upload.ErrNoFile
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.Cancel()
	c.store.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	now := time.Now()

	c.mu.Lock()
	c.current = r
	c.status = Status{
		SessionID: r.id,
		State:     StateOpening,
		Filename:  file.Name,
		StartedAt: now,
		UpdatedAt: now,
	}
	c.mu.Unlock()

	c.stats.SessionStarted()
	c.log.Info("session started", "session_id", r.id, "filename", file.Name, "bytes", len(file.Data))
	c.notify(Notification{Kind: NotifyStarted, SessionID: r.id, Snapshot: c.store.Snapshot()})

	go c.stream(runCtx, r, file)
	return r.id, nil
}

// stream is the pull loop of one session. It owns the transport body.
func (c *Controller) stream(ctx context.Context, r *run, file *upload.File) {
	defer close(r.done)
	defer r.cancel()
	log := c.log.With("session_id", r.id)

	body, err := c.opener.OpenStream(ctx, file)
	if err != nil {
		c.fail(ctx, r, log, fmt.Errorf("open stream: %w", err))
		return
	}
	defer body.Close()

	c.mu.Lock()
	r.body = body
	r.opened = time.Now()
	c.mu.Unlock()

	fr := stream.NewReader(body)
	streaming := false
	for {
		if ctx.Err() != nil {
			c.fail(ctx, r, log, ctx.Err())
			return
		}
		frames, readErr := fr.Next()
		if !streaming && fr.Received() > 0 {
			streaming = true
			c.mu.Lock()
			if ctx.Err() == nil {
				c.setStateLocked(StateStreaming)
			}
			c.mu.Unlock()
		}
		for _, frame := range frames {
			if ctx.Err() != nil {
				c.fail(ctx, r, log, ctx.Err())
				return
			}
			if done := c.handleFrame(ctx, r, log, frame); done {
				c.finish(r, log, "complete event")
				return
			}
		}
		if errors.Is(readErr, io.EOF) {
			if n := fr.Discarded(); n > 0 {
				log.Warn("discarded unterminated trailing frame", "bytes", n)
			}
			c.mu.Lock()
			cancelled := ctx.Err() != nil
			if !cancelled {
				c.store.ApplyComplete()
			}
			c.mu.Unlock()
			if cancelled {
				c.fail(ctx, r, log, ctx.Err())
				return
			}
			c.finish(r, log, "end of stream")
			return
		}
		if readErr != nil {
			c.fail(ctx, r, log, fmt.Errorf("read stream: %w", readErr))
			return
		}
	}
}

// handleFrame decodes and applies one frame. It returns true once the
// session has completed.
func (c *Controller) handleFrame(ctx context.Context, r *run, log *slog.Logger, frame string) bool {
	ev, err := stream.Decode(frame)
	if err != nil {
		var upstream *stream.UpstreamError
		if errors.As(err, &upstream) {
			log.Warn("producer reported an error", "message", upstream.Message)
		} else {
			log.Warn("skipping undecodable frame", "error", err, "frame", excerpt(frame, 200))
		}
		c.stats.DecodeError()
		c.mu.Lock()
		c.status.DecodeErrors++
		c.status.UpdatedAt = time.Now()
		c.mu.Unlock()
		return false
	}
	if ev == nil {
		return false
	}
	if pu, ok := ev.(stream.PageUpdate); ok && pu.Failed {
		log.Warn("page summary failed", "page", pu.PageNumber, "message", excerpt(pu.Summary, 200))
	}

	// Applying under mu, after a context check, means that once Cancel has
	// cancelled the run no further event reaches the store.
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	out, err := c.store.Apply(ev)
	now := time.Now()
	if err == nil {
		c.status.EventsApplied++
		c.status.UpdatedAt = now
	}
	first := r.lastEvent.IsZero()
	prev := r.lastEvent
	r.lastEvent = now
	c.mu.Unlock()

	if err != nil {
		log.Warn("event not applied", "kind", ev.Kind(), "error", err)
		return false
	}
	c.stats.EventApplied()
	if first {
		c.stats.RecordFirstEvent(now.Sub(r.opened))
	} else {
		c.stats.RecordGap(now.Sub(prev))
	}

	if ev.Kind() == stream.KindComplete {
		// A repeated complete marker changes nothing and is not reported.
		return out.Completed
	}
	if out.Changed {
		c.notify(Notification{Kind: NotifySnapshot, SessionID: r.id, Snapshot: c.store.Snapshot()})
	}
	return false
}

func (c *Controller) finish(r *run, log *slog.Logger, reason string) {
	c.mu.Lock()
	c.setStateLocked(StateCompleted)
	st := c.status
	c.mu.Unlock()

	c.stats.SessionEnded(StateCompleted, false)
	log.Info("session completed", "reason", reason, "events", st.EventsApplied, "decode_errors", st.DecodeErrors)
	c.notify(Notification{Kind: NotifyCompleted, SessionID: r.id, Snapshot: c.store.Snapshot()})
}

// fail ends the session. A cancelled context always reports ErrCancelled,
// whatever error the transport surfaced while being torn down.
func (c *Controller) fail(ctx context.Context, r *run, log *slog.Logger, err error) {
	cancelled := ctx.Err() != nil
	if cancelled {
		err = ErrCancelled
	}

	c.mu.Lock()
	c.setStateLocked(StateFailed)
	c.status.Error = err.Error()
	c.mu.Unlock()

	c.stats.SessionEnded(StateFailed, cancelled)
	if cancelled {
		log.Info("session cancelled")
	} else {
		log.Error("session failed", "error", err)
	}
	c.notify(Notification{Kind: NotifyFailed, SessionID: r.id, Snapshot: c.store.Snapshot(), Reason: err.Error()})
}

func (c *Controller) setStateLocked(s State) {
	c.status.State = s
	c.status.UpdatedAt = time.Now()
}

// Cancel stops the live session, if any. When it returns the transport has
// been released and no further event will be applied.
func (c *Controller) Cancel() Status {
	c.mu.Lock()
	r := c.current
	var body io.ReadCloser
	if r != nil {
		r.cancel()
		body = r.body
	}
	c.mu.Unlock()

	if r != nil {
		if body != nil {
			body.Close()
		}
		<-r.done
	}
	return c.Status()
}

// Wait blocks until the current session is terminal or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Status, error) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return c.Status(), nil
	}
	select {
	case <-r.done:
		return c.Status(), nil
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}
}

// LoadDocument replaces the session with a finalized document fetched from
// the library.
func (c *Controller) LoadDocument(ctx context.Context, id int64) (Status, error) {
	if c.docs == nil {
		return c.Status(), errors.New("no document source configured")
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.Cancel()
	c.store.Reset()

	sid := uuid.NewString()
	now := time.Now()
	c.mu.Lock()
	c.current = nil
	c.status = Status{SessionID: sid, State: StateOpening, StartedAt: now, UpdatedAt: now}
	c.mu.Unlock()

	log := c.log.With("session_id", sid, "doc_id", id)
	c.notify(Notification{Kind: NotifyStarted, SessionID: sid, Snapshot: c.store.Snapshot()})

	detail, err := c.docs.GetDocument(ctx, id)
	if err != nil {
		err = fmt.Errorf("load document %d: %w", id, err)
		c.mu.Lock()
		c.setStateLocked(StateFailed)
		c.status.Error = err.Error()
		c.mu.Unlock()
		log.Error("load failed", "error", err)
		c.notify(Notification{Kind: NotifyFailed, SessionID: sid, Snapshot: c.store.Snapshot(), Reason: err.Error()})
		return c.Status(), err
	}

	c.mu.Lock()
	c.store.Load(*detail)
	c.status.Filename = detail.Metadata.Filename
	c.setStateLocked(StateCompleted)
	c.mu.Unlock()

	snap := c.store.Snapshot()
	log.Info("document loaded", "pages", len(snap.Pages), "section_summaries", len(snap.SectionSummaries))
	c.notify(Notification{Kind: NotifySnapshot, SessionID: sid, Snapshot: snap})
	c.notify(Notification{Kind: NotifyCompleted, SessionID: sid, Snapshot: snap})
	return c.Status(), nil
}

// Reset cancels the live session and discards all merged state.
func (c *Controller) Reset() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.Cancel()
	c.store.Reset()

	c.mu.Lock()
	c.current = nil
	c.status = Status{State: StateIdle, UpdatedAt: time.Now()}
	c.mu.Unlock()

	c.notify(Notification{Kind: NotifySnapshot, Snapshot: c.store.Snapshot()})
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Snapshot() reconcile.Snapshot {
	return c.store.Snapshot()
}

// Page returns one page of the current session.
func (c *Controller) Page(number int) (document.Page, bool) {
	return c.store.Page(number)
}

func (c *Controller) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
