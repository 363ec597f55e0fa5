package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func TestHistoryCmd(t *testing.T) {
	_, dtDir := useTempDirs(t)

	out, err := execute(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No history.")

	store, err := sqlite.NewStore(dtDir)
	require.NoError(t, err)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, path := range []string{"/notes/a.txt", "/notes/b.txt"} {
		require.NoError(t, store.ProcessedStore().RecordCompletion(context.Background(), &domain.CompletionRecord{
			ID: path,
			CompletionEvent: domain.CompletionEvent{
				Path:            path,
				ObservedVersion: start,
				Success:         i == 0,
				StartedAt:       start,
				EndedAt:         start.Add(1500 * time.Millisecond),
			},
		}))
	}
	require.NoError(t, store.Close())

	out, err = execute(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "/notes/a.txt")
	assert.Contains(t, out, "/notes/b.txt")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1.5s")

	out, err = execute(t, "", "history", "--limit", "5", "/notes/a.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "/notes/a.txt")
	assert.NotContains(t, out, "/notes/b.txt")
}
