// Package vectorfile persists embedding cache entries as plain files.
//
// Each entry is stored as two files named by the hex SHA-256 of the document
// path: <digest>.json holds the metadata and <digest>.vec holds the vector
// matrix as little-endian float32 values, row after row. The layout needs no
// database and can be inspected or deleted by hand.
package vectorfile

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.EmbeddingStore = (*Store)(nil)

const (
	metaExt   = ".json"
	vectorExt = ".vec"
)

// meta is the JSON metadata record.
type meta struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Rows     int    `json:"rows"`
	Dims     int    `json:"dims"`
	Model    string `json:"model,omitempty"`
}

// Store reads and writes cache entries under a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: cache directory is empty", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Digest returns the file name stem used for path.
func Digest(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Save writes the entry, replacing any previous record for the same path.
// The vector file is written before the metadata so a reader never sees
// metadata pointing at a missing matrix.
func (s *Store) Save(_ context.Context, entry *domain.CacheEntry) error {
	if entry == nil || entry.Path == "" {
		return domain.ErrInvalidInput
	}

	dims := entry.Dimensions()
	if len(entry.Vectors) > 0 && dims == 0 {
		return fmt.Errorf("%w: vectors have no dimensions", domain.ErrInvalidInput)
	}
	for i, row := range entry.Vectors {
		if len(row) != dims {
			return fmt.Errorf("%w: row %d has %d dimensions, want %d", domain.ErrInvalidInput, i, len(row), dims)
		}
	}

	stem := filepath.Join(s.dir, Digest(entry.Path))
	if err := writeAtomic(stem+vectorExt, encodeMatrix(entry.Vectors, dims)); err != nil {
		return fmt.Errorf("writing vectors for %s: %w", entry.Path, err)
	}

	data, err := json.MarshalIndent(meta{
		Path:     entry.Path,
		Checksum: entry.Checksum.String(),
		Rows:     len(entry.Vectors),
		Dims:     dims,
		Model:    entry.Model,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", entry.Path, err)
	}
	if err := writeAtomic(stem+metaExt, data); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", entry.Path, err)
	}
	return nil
}

// LoadAll reads every record in the directory. Records that cannot be read
// are logged and counted in skipped.
func (s *Store) LoadAll(ctx context.Context) ([]domain.CacheEntry, int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("reading cache directory: %w", err)
	}

	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), metaExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var entries []domain.CacheEntry
	skipped := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		entry, err := s.load(strings.TrimSuffix(name, metaExt))
		if err != nil {
			logger.Warn("embedding store: skipping %s: %v", name, err)
			skipped++
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, skipped, nil
}

// Delete removes the record for path. Missing files are not an error.
func (s *Store) Delete(_ context.Context, path string) error {
	stem := filepath.Join(s.dir, Digest(path))
	for _, name := range []string{stem + metaExt, stem + vectorExt} {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
	}
	return nil
}

// load reads one record by file stem.
func (s *Store) load(stem string) (*domain.CacheEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, stem+metaExt))
	if err != nil {
		return nil, err
	}

	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}
	if m.Path == "" || m.Rows < 0 || m.Dims < 0 {
		return nil, fmt.Errorf("%w: incomplete metadata", domain.ErrCorruptRecord)
	}
	if Digest(m.Path) != stem {
		return nil, fmt.Errorf("%w: file name does not match path %q", domain.ErrCorruptRecord, m.Path)
	}
	checksum, err := domain.ParseChecksum(m.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, stem+vectorExt))
	if err != nil {
		return nil, fmt.Errorf("%w: vector file: %v", domain.ErrCorruptRecord, err)
	}
	vectors, err := decodeMatrix(raw, m.Rows, m.Dims)
	if err != nil {
		return nil, err
	}

	return &domain.CacheEntry{
		Path:     m.Path,
		Checksum: checksum,
		Vectors:  vectors,
		Model:    m.Model,
	}, nil
}

// encodeMatrix lays rows out as consecutive little-endian float32 values.
func encodeMatrix(rows [][]float32, dims int) []byte {
	b := make([]byte, len(rows)*dims*4)
	off := 0
	for _, row := range rows {
		for _, v := range row {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
			off += 4
		}
	}
	return b
}

// decodeMatrix reverses encodeMatrix.
// Rows and dims come from the metadata file and are checked against the
// vector file size before anything is allocated.
func decodeMatrix(b []byte, rows, dims int) ([][]float32, error) {
	if rows < 0 || dims < 0 {
		return nil, fmt.Errorf("%w: negative matrix shape %dx%d", domain.ErrCorruptRecord, rows, dims)
	}
	if rows > 0 && dims == 0 {
		return nil, fmt.Errorf("%w: %d rows without dimensions", domain.ErrCorruptRecord, rows)
	}
	if dims > 0 && rows > len(b)/4/dims {
		return nil, fmt.Errorf("%w: vector file has %d bytes, too short for %dx%d", domain.ErrCorruptRecord, len(b), rows, dims)
	}
	if len(b) != rows*dims*4 {
		return nil, fmt.Errorf("%w: vector file has %d bytes, want %d", domain.ErrCorruptRecord, len(b), rows*dims*4)
	}
	if rows == 0 {
		return nil, nil
	}
	out := make([][]float32, rows)
	off := 0
	for i := range out {
		row := make([]float32, dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
		out[i] = row
	}
	return out, nil
}

// writeAtomic writes data to a temporary file and renames it into place.
func writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
