package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ProcessedStore persists the change scheduler's processed versions and
// completion history so that a restart does not reprocess unchanged items.
type ProcessedStore interface {
	// LoadVersions returns the last successfully processed version per path.
	LoadVersions(ctx context.Context) (map[string]time.Time, error)

	// SaveVersion records a successfully processed version.
	SaveVersion(ctx context.Context, path string, version time.Time) error

	// RecordCompletion logs a completion. An empty ID is assigned by the store.
	RecordCompletion(ctx context.Context, record *domain.CompletionRecord) error

	// History returns recent completions, most recent first.
	// An empty path returns completions for all paths.
	History(ctx context.Context, path string, limit int) ([]domain.CompletionRecord, error)

	// PruneHistory keeps only the most recent 'keep' completions per path.
	PruneHistory(ctx context.Context, keep int) error
}
