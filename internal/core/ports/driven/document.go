package driven

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// DocumentStore reads and writes annotated documents.
// This is the boundary to the document format; the core never parses
// document bytes itself.
type DocumentStore interface {
	// Load parses the document at path.
	// Returns domain.ErrNotFound if the file no longer exists.
	Load(ctx context.Context, path string) (*domain.Document, error)

	// Save writes replies recorded in doc back to doc.Path.
	Save(ctx context.Context, doc *domain.Document) error

	// Supports reports whether the store can handle the path.
	Supports(path string) bool
}
