package driving

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ContextProvider selects the pages of a document most relevant to a query.
type ContextProvider interface {
	// TopK returns the texts of the k pages most similar to query plus the
	// page at mustInclude, in ascending page order. It returns
	// domain.ErrNotReady when embeddings for the current content are not
	// available yet; computation has then been requested.
	TopK(ctx context.Context, path string, pages []string, query string, mustInclude, k int) ([]string, error)
}

// EmbeddingCache is a ContextProvider backed by a content-addressed cache
// that recomputes in the background.
type EmbeddingCache interface {
	ContextProvider

	// Load fills the cache from the durable store.
	Load(ctx context.Context) error

	// Start runs the background compute loop.
	// Blocks until Stop is called or the context is cancelled.
	Start(ctx context.Context) error

	// Stop stops the compute loop.
	Stop() error

	// Flush computes every queued request in the calling goroutine.
	Flush(ctx context.Context) error

	// Entry returns a copy of the cached entry for a path.
	Entry(path string) (domain.CacheEntry, bool)
}
