package aigateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/lumenlab/aigateway"
)

func newTracker(retention time.Duration, opts ...ai.TrackerOption) *ai.Tracker {
	return ai.NewTracker(ai.TrackingConfig{
		Enabled:   true,
		Retention: ai.Duration(retention),
	}, opts...)
}

func record(ts time.Time, provider string, success bool) ai.UsageRecord {
	return ai.UsageRecord{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Provider:  provider,
		Operation: "generate-image",
		Success:   success,
		Latency:   120 * time.Millisecond,
	}
}

func TestTracker_QueryFiltersByProviderAndTime(t *testing.T) {
	tr := newTracker(24 * time.Hour)
	now := time.Now()

	tr.Record(record(now.Add(-2*time.Hour), "fal", true))
	tr.Record(record(now.Add(-time.Minute), "fal", true))
	tr.Record(record(now.Add(-time.Minute), "openai", false))

	all := tr.Query("", 24*time.Hour)
	assert.Len(t, all, 3)

	falOnly := tr.Query("fal", 24*time.Hour)
	assert.Len(t, falOnly, 2)

	recent := tr.Query("", time.Hour)
	assert.Len(t, recent, 2)
}

func TestTracker_RetentionTrimsOldRecords(t *testing.T) {
	tr := newTracker(time.Hour)
	now := time.Now()

	old := record(now.Add(-2*time.Hour), "fal", true)
	tr.Record(old)
	tr.Record(record(now, "fal", true))

	got := tr.Query("", time.Hour)
	require.Len(t, got, 1)
	assert.NotEqual(t, old.ID, got[0].ID)

	// The trimmed entry is gone even for wide queries.
	assert.Len(t, tr.Query("", 48*time.Hour), 1)
}

func TestTracker_DisabledRecordsNothing(t *testing.T) {
	tr := ai.NewTracker(ai.TrackingConfig{Enabled: false, Retention: ai.Duration(time.Hour)})

	tr.Record(record(time.Now(), "fal", true))
	assert.Empty(t, tr.Query("", time.Hour))
}

type captureSink struct {
	snapshots [][]ai.UsageRecord
	err       error
}

func (s *captureSink) Persist(_ context.Context, records []ai.UsageRecord) error {
	s.snapshots = append(s.snapshots, records)
	return s.err
}

func TestTracker_SinkReceivesTrimmedSnapshot(t *testing.T) {
	sink := &captureSink{}
	tr := newTracker(time.Hour, ai.WithSink(sink))
	now := time.Now()

	tr.Record(record(now.Add(-2*time.Hour), "fal", true))
	tr.Record(record(now, "fal", true))

	require.Len(t, sink.snapshots, 2)
	// Second snapshot no longer contains the expired record.
	assert.Len(t, sink.snapshots[1], 1)
}

func TestTracker_SinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	tr := newTracker(time.Hour, ai.WithSink(sink))

	// Must not panic or surface the sink error.
	tr.Record(record(time.Now(), "fal", true))
	assert.Len(t, tr.Query("", time.Hour), 1)
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	records := []ai.UsageRecord{
		{Timestamp: now, Provider: "fal", Success: true, Latency: 100 * time.Millisecond},
		{Timestamp: now, Provider: "fal", Success: false, Latency: 300 * time.Millisecond},
		{Timestamp: now, Provider: "openai", Success: true, Latency: 200 * time.Millisecond},
	}

	s := ai.Summarize(records)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successes)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.Equal(t, 200*time.Millisecond, s.AvgLatency)
	assert.Equal(t, 2, s.ByProvider["fal"])
	assert.Equal(t, 1, s.ByProvider["openai"])
}

func TestSummarize_Empty(t *testing.T) {
	s := ai.Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.AvgLatency)
}
