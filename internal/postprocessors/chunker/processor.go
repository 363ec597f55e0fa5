// Package chunker splits text into fixed-size pages.
package chunker

import "unicode/utf8"

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 3000

// Processor splits text into contiguous chunks. Concatenating the chunks
// returns the input unchanged, so an offset in the text maps to exactly
// one chunk.
type Processor struct {
	chunkSize int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Split cuts content into chunks of at most chunkSize bytes. Cuts are moved
// back to a rune boundary, and to the last newline in the chunk when there
// is one in its second half.
func (p *Processor) Split(content string) []string {
	if content == "" {
		// Empty content produces no chunks
		return nil
	}

	chunks := make([]string, 0, len(content)/p.chunkSize+1)
	start := 0
	for start < len(content) {
		end := start + p.chunkSize
		if end >= len(content) {
			chunks = append(chunks, content[start:])
			break
		}

		end = p.cutPoint(content, start, end)
		chunks = append(chunks, content[start:end])
		start = end
	}

	return chunks
}

// cutPoint picks where the chunk starting at start ends, at or before end.
func (p *Processor) cutPoint(content string, start, end int) int {
	for i := end; i > start+p.chunkSize/2; i-- {
		if content[i-1] == '\n' {
			return i
		}
	}

	for end > start && !utf8.RuneStart(content[end]) {
		end--
	}
	if end == start {
		// A single rune longer than the chunk size
		_, size := utf8.DecodeRuneInString(content[start:])
		end = start + size
	}
	return end
}
