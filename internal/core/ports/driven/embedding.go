package driven

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, page-context assistants are disabled.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingStore is the durable copy of the embedding cache.
type EmbeddingStore interface {
	// LoadAll returns every readable record. Records that cannot be decoded
	// are skipped and reported through the returned skip count; they never
	// fail the load as a whole.
	LoadAll(ctx context.Context) (entries []domain.CacheEntry, skipped int, err error)

	// Save writes or overwrites the record for entry.Path.
	Save(ctx context.Context, entry *domain.CacheEntry) error

	// Delete removes the record for a path. Missing records are not an error.
	Delete(ctx context.Context, path string) error
}
