package aigateway

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UsageRecord is one logged outcome of a single gateway invocation.
// Records are immutable once created.
type UsageRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Provider  string        `json:"provider"`
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	Latency   time.Duration `json:"latency"`
	Tokens    int64         `json:"tokens,omitempty"`
	Err       *Error        `json:"error,omitempty"`
}

// Sink persists the usage log to a durable side-channel.
type Sink interface {
	Persist(ctx context.Context, records []UsageRecord) error
}

// Tracker keeps a time-windowed, append-only log of call outcomes.
type Tracker struct {
	mu        sync.Mutex
	records   []UsageRecord
	retention time.Duration
	enabled   bool
	sink      Sink
	logger    *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithSink sets the durable side-channel for the usage log.
func WithSink(s Sink) TrackerOption {
	return func(t *Tracker) { t.sink = s }
}

// WithTrackerLogger sets the logger used for swallowed sink failures.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a usage tracker from the tracking config.
func NewTracker(cfg TrackingConfig, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		retention: cfg.Retention.Std(),
		enabled:   cfg.Enabled,
		logger:    slog.Default(),
	}
	if t.retention <= 0 {
		t.retention = defaultRetention
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends one record, trims entries older than the retention window,
// and best-effort persists the trimmed log. Persistence failures are logged
// and swallowed: tracking must never fail the primary operation.
func (t *Tracker) Record(rec UsageRecord) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	t.records = append(t.records, rec)
	t.trimLocked(rec.Timestamp)
	snapshot := make([]UsageRecord, len(t.records))
	copy(snapshot, t.records)
	t.mu.Unlock()

	if t.sink == nil {
		return
	}
	if err := t.sink.Persist(context.Background(), snapshot); err != nil {
		t.logger.Warn("usage_persist_failed", "error", err, "records", len(snapshot))
	}
}

// trimLocked drops records older than the retention window. The log is
// approximately time-ordered, so this is a prefix trim.
func (t *Tracker) trimLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for i < len(t.records) && t.records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.records = append(t.records[:0], t.records[i:]...)
	}
}

// Query returns all records within the timeframe, newest last. If provider
// is non-empty, only that provider's records are returned.
func (t *Tracker) Query(provider string, timeframe time.Duration) []UsageRecord {
	cutoff := time.Now().Add(-timeframe)

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []UsageRecord
	for _, rec := range t.records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if provider != "" && rec.Provider != provider {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Stats is a summary computed over a set of usage records. The tracker
// stores no aggregates; derive them from Query results as needed.
type Stats struct {
	Total       int
	Successes   int
	SuccessRate float64
	AvgLatency  time.Duration
	ByProvider  map[string]int
}

// Summarize computes aggregate statistics over records.
func Summarize(records []UsageRecord) Stats {
	s := Stats{ByProvider: make(map[string]int)}
	var totalLatency time.Duration
	for _, rec := range records {
		s.Total++
		if rec.Success {
			s.Successes++
		}
		totalLatency += rec.Latency
		s.ByProvider[rec.Provider]++
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Total)
		s.AvgLatency = totalLatency / time.Duration(s.Total)
	}
	return s
}
