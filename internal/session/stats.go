package session

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// LatencySnapshot is a point-in-time aggregate of latency samples.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StatsSnapshot aggregates stream timings and lifetime counters.
type StatsSnapshot struct {
	FirstEvent LatencySnapshot `json:"time_to_first_event"`
	EventGap   LatencySnapshot `json:"inter_event_gap"`

	SessionsStarted   int64 `json:"sessions_started"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsFailed    int64 `json:"sessions_failed"`
	SessionsCancelled int64 `json:"sessions_cancelled"`
	EventsApplied     int64 `json:"events_applied"`
	DecodeErrors      int64 `json:"decode_errors"`
}

// StreamStats tracks recent stream timings within a rolling window.
type StreamStats struct {
	mu         sync.Mutex
	firstEvent []sample
	gaps       []sample
	maxAge     time.Duration
	now        func() time.Time

	started, completed, failed, cancelled int64
	events, decodeErrors                  int64
}

func NewStreamStats(maxAge time.Duration) *StreamStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &StreamStats{
		firstEvent: make([]sample, 0, 64),
		gaps:       make([]sample, 0, 256),
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// RecordFirstEvent records the delay between opening a stream and its first
// applied event.
func (s *StreamStats) RecordFirstEvent(d time.Duration) {
	s.record(&s.firstEvent, d)
}

// RecordGap records the delay between two consecutive applied events.
func (s *StreamStats) RecordGap(d time.Duration) {
	s.record(&s.gaps, d)
}

func (s *StreamStats) record(dst *[]sample, d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	*dst = prune(*dst, now.Add(-s.maxAge))
	*dst = append(*dst, sample{timestamp: now, durationMs: ms})
}

func (s *StreamStats) SessionStarted() {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

// SessionEnded counts a terminal session. Cancelled sessions are counted
// separately from other failures.
func (s *StreamStats) SessionEnded(state State, cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case state == StateCompleted:
		s.completed++
	case cancelled:
		s.cancelled++
	default:
		s.failed++
	}
}

func (s *StreamStats) EventApplied() {
	s.mu.Lock()
	s.events++
	s.mu.Unlock()
}

func (s *StreamStats) DecodeError() {
	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
}

func (s *StreamStats) Snapshot() StatsSnapshot {
	now := s.now()
	cutoff := now.Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.firstEvent = prune(s.firstEvent, cutoff)
	s.gaps = prune(s.gaps, cutoff)
	return StatsSnapshot{
		FirstEvent:        aggregate(s.firstEvent),
		EventGap:          aggregate(s.gaps),
		SessionsStarted:   s.started,
		SessionsCompleted: s.completed,
		SessionsFailed:    s.failed,
		SessionsCancelled: s.cancelled,
		EventsApplied:     s.events,
		DecodeErrors:      s.decodeErrors,
	}
}

func prune(samples []sample, cutoff time.Time) []sample {
	writeIdx := 0
	for _, sm := range samples {
		if !sm.timestamp.Before(cutoff) {
			samples[writeIdx] = sm
			writeIdx++
		}
	}
	return samples[:writeIdx]
}

func aggregate(samples []sample) LatencySnapshot {
	if len(samples) == 0 {
		return LatencySnapshot{}
	}
	values := make([]int64, 0, len(samples))
	var sum int64
	for _, sm := range samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return LatencySnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
