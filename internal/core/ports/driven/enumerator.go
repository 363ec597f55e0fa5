package driven

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// SourceEnumerator lists candidate items with their current versions.
// Implementations hold no state between calls.
type SourceEnumerator interface {
	// Enumerate returns every candidate item under the watched root.
	Enumerate(ctx context.Context) ([]domain.Item, error)
}

// ChangeNotifier emits hints that the watched tree may have changed.
// Hints are coalesced; a receive means "scan soon", never "this item is due".
type ChangeNotifier interface {
	// Changes returns the channel hints are delivered on.
	Changes() <-chan struct{}

	// Close stops delivering hints and releases resources.
	Close() error
}
