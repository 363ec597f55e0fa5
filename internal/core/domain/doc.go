// Package domain defines the core business entities for marginalia.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Item, ScheduleEntry, CompletionEvent: change-scheduler bookkeeping
//   - CacheEntry, Checksum: the content-addressed embedding cache
//   - Document, Annotation: a watched document and its questions
//   - AppSettings: configuration consumed by the core
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
