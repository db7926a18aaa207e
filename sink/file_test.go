package sink_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/lumenlab/aigateway"
	"github.com/lumenlab/aigateway/sink"
)

func TestFile_PersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	f := sink.NewFile(path)

	records := []ai.UsageRecord{
		{
			ID:        uuid.New().String(),
			Timestamp: time.Now().Truncate(time.Millisecond),
			Provider:  "fal",
			Operation: "generate-image",
			Success:   true,
			Latency:   340 * time.Millisecond,
			Tokens:    12,
		},
		{
			ID:        uuid.New().String(),
			Timestamp: time.Now().Truncate(time.Millisecond),
			Provider:  "openai",
			Operation: "generate-content",
			Success:   false,
			Latency:   90 * time.Millisecond,
			Err:       ai.NewErrorWithStatus("no key", ai.KindInvalidAPIKey, 401, 0),
		},
	}

	require.NoError(t, f.Persist(context.Background(), records))

	got, err := f.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, records[0].ID, got[0].ID)
	assert.Equal(t, records[1].Provider, got[1].Provider)
	require.NotNil(t, got[1].Err)
	assert.Equal(t, ai.KindInvalidAPIKey, got[1].Err.Kind)
	assert.Equal(t, 401, got[1].Err.StatusCode)
}

func TestFile_PersistOverwritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	f := sink.NewFile(path)
	ctx := context.Background()

	require.NoError(t, f.Persist(ctx, []ai.UsageRecord{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, f.Persist(ctx, []ai.UsageRecord{{ID: "b"}}))

	got, err := f.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestFile_LoadMissingFile(t *testing.T) {
	f := sink.NewFile(filepath.Join(t.TempDir(), "absent.json"))
	got, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}
