package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
	"github.com/custodia-labs/marginalia/internal/csync"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure EmbeddingCache implements the interface.
var _ driving.EmbeddingCache = (*EmbeddingCache)(nil)

// computeRequest asks the compute loop to embed the pages of a document.
type computeRequest struct {
	path  string
	pages []string
}

// EmbeddingCache keeps one embedding matrix per document, keyed by path and
// validated by a checksum of the page texts. Missing or stale entries are
// computed in the background; queries never wait for them.
//
// Installed entries are never mutated, only replaced, so a snapshot taken
// under the lock stays valid after it is released.
type EmbeddingCache struct {
	embedder driven.EmbeddingService
	store    driven.EmbeddingStore

	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	pending map[string]domain.Checksum

	requests *csync.Queue[computeRequest]

	// computeMu serialises compute between the Start loop and Flush so
	// that entries reach the store in the order they were installed.
	computeMu sync.Mutex

	lifecycle sync.Mutex
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewEmbeddingCache creates a cache. store may be nil for a memory-only cache.
func NewEmbeddingCache(embedder driven.EmbeddingService, store driven.EmbeddingStore) *EmbeddingCache {
	return &EmbeddingCache{
		embedder: embedder,
		store:    store,
		entries:  make(map[string]domain.CacheEntry),
		pending:  make(map[string]domain.Checksum),
		requests: csync.NewQueue[computeRequest](),
	}
}

// Load fills the cache from the durable store. Records written by a
// different embedding model are ignored.
func (c *EmbeddingCache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	entries, skipped, err := c.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load embedding cache: %w", err)
	}

	model := ""
	if c.embedder != nil {
		model = c.embedder.ModelName()
	}

	loaded := 0
	c.mu.Lock()
	for i := range entries {
		entry := entries[i]
		if model != "" && entry.Model != "" && entry.Model != model {
			logger.Debug("embedding cache: skipping %s, computed with %s", entry.Path, entry.Model)
			skipped++
			continue
		}
		c.entries[entry.Path] = entry
		loaded++
	}
	c.mu.Unlock()

	logger.Info("embedding cache: loaded %d entries, skipped %d", loaded, skipped)
	return nil
}

// Entry returns the cached entry for a path.
func (c *EmbeddingCache) Entry(path string) (domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[path]
	return entry, ok
}

// TopK returns the texts of the k pages most similar to query together with
// the page at mustInclude, in ascending page order. When no entry matches
// the current pages it requests a computation and returns domain.ErrNotReady.
func (c *EmbeddingCache) TopK(
	ctx context.Context,
	path string,
	pages []string,
	query string,
	mustInclude, k int,
) ([]string, error) {
	if c.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	checksum := domain.ComputeChecksum(pages)

	c.mu.Lock()
	entry, ok := c.entries[path]
	if !ok || entry.Checksum != checksum || len(entry.Vectors) != len(pages) {
		marked := c.pending[path] == checksum
		c.pending[path] = checksum
		c.mu.Unlock()

		if marked {
			logger.Debug("embedding cache: %s still being computed", path)
		} else {
			logger.Info("embedding cache: computing embeddings for %s", path)
		}
		// Enqueued even when already marked; the compute loop drops duplicates.
		c.requests.Push(computeRequest{path: path, pages: pages})
		return nil, domain.ErrNotReady
	}
	vectors := entry.Vectors
	c.mu.Unlock()

	queryVector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	indices := topIndices(vectors, normalise(queryVector), k)
	if mustInclude >= 0 && mustInclude < len(pages) && !containsIndex(indices, mustInclude) {
		indices = append(indices, mustInclude)
	}
	sort.Ints(indices)

	texts := make([]string, 0, len(indices))
	for _, i := range indices {
		if i < len(pages) {
			texts = append(texts, pages[i])
		}
	}
	return texts, nil
}

// Start runs the compute loop. It blocks until Stop is called or ctx is
// cancelled.
func (c *EmbeddingCache) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	if c.running {
		c.lifecycle.Unlock()
		return nil // Already running
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.wg.Add(1)
	c.lifecycle.Unlock()

	defer func() {
		c.lifecycle.Lock()
		c.running = false
		c.lifecycle.Unlock()
		c.wg.Done()
	}()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	for {
		req, err := c.requests.Pop(loopCtx)
		if err != nil {
			return nil
		}
		// A computation in progress is allowed to finish after Stop.
		_ = c.compute(context.WithoutCancel(loopCtx), req)
	}
}

// Stop stops the compute loop and waits for the current computation.
func (c *EmbeddingCache) Stop() error {
	c.lifecycle.Lock()
	if !c.running || c.stopCh == nil {
		c.lifecycle.Unlock()
		return nil
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.lifecycle.Unlock()

	c.wg.Wait()
	return nil
}

// Flush computes every queued request in the calling goroutine. It may run
// while Start is active; the two never compute at the same time.
func (c *EmbeddingCache) Flush(ctx context.Context) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, ok := c.requests.TryPop()
		if !ok {
			return errors.Join(errs...)
		}
		if err := c.compute(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
}

// compute embeds the pages of one request unless an entry with the same
// checksum is already installed.
func (c *EmbeddingCache) compute(ctx context.Context, req computeRequest) error {
	c.computeMu.Lock()
	defer c.computeMu.Unlock()

	checksum := domain.ComputeChecksum(req.pages)

	c.mu.Lock()
	if entry, ok := c.entries[req.path]; ok && entry.Checksum == checksum && len(entry.Vectors) == len(req.pages) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var vectors [][]float32
	if len(req.pages) > 0 {
		var err error
		vectors, err = c.embedder.EmbedBatch(ctx, req.pages)
		if err == nil && len(vectors) != len(req.pages) {
			err = fmt.Errorf("embedder returned %d vectors for %d pages", len(vectors), len(req.pages))
		}
		if err != nil {
			c.clearPending(req.path, checksum)
			logger.Warn("embedding cache: computing %s failed: %v", req.path, err)
			return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}

	entry := domain.CacheEntry{
		Path:     req.path,
		Checksum: checksum,
		Vectors:  vectors,
		Model:    c.embedder.ModelName(),
	}

	c.mu.Lock()
	c.entries[req.path] = entry
	if c.pending[req.path] == checksum {
		delete(c.pending, req.path)
	}
	c.mu.Unlock()

	logger.Info("embedding cache: stored %d page embeddings for %s", len(vectors), req.path)

	if c.store != nil {
		if err := c.store.Save(ctx, &entry); err != nil {
			logger.Warn("embedding cache: failed to persist %s: %v", req.path, err)
		}
	}
	return nil
}

func (c *EmbeddingCache) clearPending(path string, checksum domain.Checksum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[path] == checksum {
		delete(c.pending, path)
	}
}

// normalise returns v scaled to unit length. A zero vector is returned as is.
func normalise(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// topIndices ranks pages by dot(page, query) and returns the best k.
// Only the query is normalised, so longer page vectors score higher.
// TODO: normalise page vectors at install time and bump the cache format.
func topIndices(vectors [][]float32, query []float32, k int) []int {
	if k <= 0 {
		return nil
	}

	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		n := min(len(v), len(query))
		var dot float64
		for j := 0; j < n; j++ {
			dot += float64(v[j]) * float64(query[j])
		}
		scores[i] = dot
	}

	indices := make([]int, len(vectors))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})

	if k < len(indices) {
		indices = indices[:k]
	}
	return indices
}

func containsIndex(indices []int, i int) bool {
	for _, x := range indices {
		if x == i {
			return true
		}
	}
	return false
}
