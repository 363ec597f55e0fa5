package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Ensure ProcessedStore implements the interface.
var _ driven.ProcessedStore = (*ProcessedStore)(nil)

// ProcessedStore is an in-memory implementation of driven.ProcessedStore.
// State is lost when the process exits.
type ProcessedStore struct {
	mu       sync.RWMutex
	versions map[string]time.Time
	records  []domain.CompletionRecord
}

// NewProcessedStore creates a new in-memory processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{
		versions: make(map[string]time.Time),
	}
}

// LoadVersions returns a copy of every stored version.
func (s *ProcessedStore) LoadVersions(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.versions))
	for path, v := range s.versions {
		out[path] = v
	}
	return out, nil
}

// SaveVersion records a successfully processed version.
func (s *ProcessedStore) SaveVersion(_ context.Context, path string, version time.Time) error {
	if path == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[path] = version
	return nil
}

// RecordCompletion appends a completion, assigning an ID when empty.
func (s *ProcessedStore) RecordCompletion(_ context.Context, record *domain.CompletionRecord) error {
	if record == nil || record.Path == "" {
		return domain.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

// History returns completions for path (all paths when empty), most recent
// first. A non-positive limit returns everything.
func (s *ProcessedStore) History(_ context.Context, path string, limit int) ([]domain.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CompletionRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if path != "" && s.records[i].Path != path {
			continue
		}
		out = append(out, s.records[i])
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].EndedAt.After(out[b].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneHistory keeps the most recent keep completions per path.
func (s *ProcessedStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	kept := make([]domain.CompletionRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if counts[r.Path] >= keep {
			continue
		}
		counts[r.Path]++
		kept = append(kept, r)
	}
	// Restore insertion order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.records = kept
	return nil
}
