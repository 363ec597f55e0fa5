package driven

import "context"

// Processor handles a single scheduled item.
type Processor interface {
	// Process returns true when the item needs no further retry: it was
	// fully handled or there was nothing to do. It returns false when a
	// retry-worthy failure occurred.
	Process(ctx context.Context, path string) bool
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, path string) bool

// Process calls f(ctx, path).
func (f ProcessorFunc) Process(ctx context.Context, path string) bool {
	return f(ctx, path)
}
