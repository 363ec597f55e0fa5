package vectorfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func sampleEntry(path string) *domain.CacheEntry {
	return &domain.CacheEntry{
		Path:     path,
		Checksum: domain.ComputeChecksum([]string{"one", "two", "three"}),
		Vectors: [][]float32{
			{0.5, -1.25, 3},
			{0, 1e-7, -0},
			{42, 0.125, -7.5},
		},
		Model: "nomic-embed-text",
	}
}

func TestNewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache", "embeddings")

	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
	assert.DirExists(t, dir)

	_, err = NewStore("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleEntry("/notes/a.txt")))
	require.NoError(t, store.Save(ctx, sampleEntry("/notes/b.txt")))

	entries, skipped, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, entries, 2)

	byPath := map[string]domain.CacheEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	want := sampleEntry("/notes/a.txt")
	got := byPath["/notes/a.txt"]
	assert.Equal(t, want.Checksum, got.Checksum)
	assert.Equal(t, want.Vectors, got.Vectors)
	assert.Equal(t, want.Model, got.Model)
}

func TestStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), sampleEntry("/notes/a.txt")))

	stem := filepath.Join(dir, Digest("/notes/a.txt"))
	info, err := os.Stat(stem + ".vec")
	require.NoError(t, err)
	assert.Equal(t, int64(3*3*4), info.Size())

	meta, err := os.ReadFile(stem + ".json")
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"path": "/notes/a.txt"`)
	assert.Contains(t, string(meta), `"rows": 3`)
	assert.Contains(t, string(meta), `"dims": 3`)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleEntry("/notes/a.txt")))
	updated := &domain.CacheEntry{
		Path:     "/notes/a.txt",
		Checksum: domain.ComputeChecksum([]string{"only"}),
		Vectors:  [][]float32{{1, 2}},
	}
	require.NoError(t, store.Save(ctx, updated))

	entries, _, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, updated.Vectors, entries[0].Vectors)
}

func TestStore_SaveRejectsRaggedMatrix(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save(context.Background(), &domain.CacheEntry{
		Path:    "/notes/a.txt",
		Vectors: [][]float32{{1, 2}, {3}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.ErrorIs(t, store.Save(context.Background(), nil), domain.ErrInvalidInput)

	err = store.Save(context.Background(), &domain.CacheEntry{
		Path:    "/notes/b.txt",
		Vectors: [][]float32{{}, {}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDecodeMatrix_RejectsShapeBeforeAllocating(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		rows, dims int
	}{
		{"rows overflow the size product", 0, 1 << 62, 1},
		{"dims overflow the size product", 8, 2, 1 << 62},
		{"rows without dims", 0, 1 << 40, 0},
		{"negative rows", 0, -1, 3},
		{"negative dims", 0, 3, -1},
		{"short file", 8, 3, 1},
		{"long file", 16, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMatrix(make([]byte, tt.size), tt.rows, tt.dims)
			assert.ErrorIs(t, err, domain.ErrCorruptRecord)
		})
	}

	out, err := decodeMatrix(make([]byte, 8), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {0}}, out)
}

func TestStore_EmptyMatrix(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.CacheEntry{
		Path:     "/notes/empty.txt",
		Checksum: domain.ComputeChecksum(nil),
	}))

	entries, skipped, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Vectors)
}

func TestStore_LoadAllSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{
		"/good.txt", "/truncated.txt", "/novec.txt", "/badjson.txt", "/renamed.txt", "/badsum.txt",
		"/hugerows.txt", "/nodims.txt",
	} {
		require.NoError(t, store.Save(ctx, sampleEntry(p)))
	}

	stem := func(p string) string { return filepath.Join(dir, Digest(p)) }
	require.NoError(t, os.WriteFile(stem("/truncated.txt")+".vec", []byte{1, 2, 3}, 0600))
	require.NoError(t, os.Remove(stem("/novec.txt")+".vec"))
	require.NoError(t, os.WriteFile(stem("/badjson.txt")+".json", []byte("{not json"), 0600))
	require.NoError(t, os.Rename(stem("/renamed.txt")+".json", filepath.Join(dir, "0000.json")))
	require.NoError(t, os.WriteFile(stem("/badsum.txt")+".json",
		[]byte(`{"path":"/badsum.txt","checksum":"xyz","rows":3,"dims":3}`), 0600))

	sum := sampleEntry("").Checksum.String()
	require.NoError(t, os.WriteFile(stem("/hugerows.txt")+".json",
		[]byte(`{"path":"/hugerows.txt","checksum":"`+sum+`","rows":4611686018427387904,"dims":1}`), 0600))
	require.NoError(t, os.WriteFile(stem("/hugerows.txt")+".vec", nil, 0600))
	require.NoError(t, os.WriteFile(stem("/nodims.txt")+".json",
		[]byte(`{"path":"/nodims.txt","checksum":"`+sum+`","rows":9223372036854775807,"dims":0}`), 0600))
	require.NoError(t, os.WriteFile(stem("/nodims.txt")+".vec", nil, 0600))

	entries, skipped, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, skipped)
	require.Len(t, entries, 1)
	assert.Equal(t, "/good.txt", entries[0].Path)
}

func TestStore_LoadAllIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0700))

	entries, skipped, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, skipped)
}

func TestStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleEntry("/notes/a.txt")))
	require.NoError(t, store.Delete(ctx, "/notes/a.txt"))
	require.NoError(t, store.Delete(ctx, "/notes/missing.txt"))

	entries, _, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoFileExists(t, filepath.Join(dir, Digest("/notes/a.txt")+".vec"))
}
