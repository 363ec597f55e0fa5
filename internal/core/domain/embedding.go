package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Checksum is a content digest over a document's page texts.
// It is used for change detection only, not for security.
type Checksum [sha256.Size]byte

// ComputeChecksum digests all page texts in order.
// Each page is length-prefixed so that re-paginating the same text
// produces a different checksum; a matching checksum therefore also
// implies a matching page count.
func ComputeChecksum(pages []string) Checksum {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range pages {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	var c Checksum
	copy(c[:], h.Sum(nil))
	return c
}

// String returns the hex encoding of the checksum.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether the checksum is unset.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// ParseChecksum decodes a hex-encoded checksum.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: checksum: %w", ErrInvalidInput, err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("%w: checksum length %d", ErrInvalidInput, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// CacheEntry holds the page-level embeddings of one document version.
type CacheEntry struct {
	// Path identifies the document.
	Path string

	// Checksum is the digest of the page texts the vectors were computed from.
	Checksum Checksum

	// Vectors has one embedding per page, in page order.
	Vectors [][]float32

	// Model is the embedding model that produced the vectors.
	Model string
}

// Dimensions returns the vector width, or 0 for an empty matrix.
func (e *CacheEntry) Dimensions() int {
	if len(e.Vectors) == 0 {
		return 0
	}
	return len(e.Vectors[0])
}

// ContextConfig holds similarity retrieval configuration.
type ContextConfig struct {
	// K is the number of most similar pages added as context.
	K int

	// PageSize is the page length in characters for documents without
	// explicit page breaks.
	PageSize int
}

// DefaultContextConfig returns sensible retrieval defaults.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		K:        3,
		PageSize: 3000,
	}
}
