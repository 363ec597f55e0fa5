package driving

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ChangeScheduler watches a source for changed items and feeds them to a
// single worker.
type ChangeScheduler interface {
	// Start runs the tick loop and the worker.
	// Blocks until Stop is called or the context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the tick loop and waits for the worker.
	Stop() error

	// Stats returns a snapshot of the scheduler counters.
	Stats() domain.SchedulerStats
}
