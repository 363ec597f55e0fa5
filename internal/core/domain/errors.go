package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates a configuration value could not be parsed.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotReady indicates embeddings for the current content of a document
	// have been requested but not computed yet. The caller should retry the
	// whole item later.
	ErrNotReady = errors.New("embeddings not ready")

	// ErrCorruptRecord indicates a durable cache record could not be decoded.
	ErrCorruptRecord = errors.New("corrupt cache record")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Annotations cannot be answered without it.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Page-context assistants are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrUnsupportedType indicates an unknown provider type.
	ErrUnsupportedType = errors.New("unsupported type")
)
