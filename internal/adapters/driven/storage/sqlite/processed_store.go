package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// processedStore implements driven.ProcessedStore.
type processedStore struct {
	store *Store
}

var _ driven.ProcessedStore = (*processedStore)(nil)

// LoadVersions returns the last successfully processed version per path.
func (s *processedStore) LoadVersions(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT path, version_ns FROM processed_versions")
	if err != nil {
		return nil, fmt.Errorf("querying processed versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]time.Time)
	for rows.Next() {
		var path string
		var ns int64
		if err := rows.Scan(&path, &ns); err != nil {
			return nil, fmt.Errorf("scanning processed version: %w", err)
		}
		versions[path] = time.Unix(0, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processed versions: %w", err)
	}
	return versions, nil
}

// SaveVersion records a successfully processed version.
func (s *processedStore) SaveVersion(ctx context.Context, path string, version time.Time) error {
	if path == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO processed_versions (path, version_ns, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			version_ns = excluded.version_ns,
			updated_at = excluded.updated_at
	`, path, version.UnixNano())
	if err != nil {
		return fmt.Errorf("saving processed version: %w", err)
	}
	return nil
}

// RecordCompletion logs a completion. An empty ID is replaced with a new UUID.
func (s *processedStore) RecordCompletion(ctx context.Context, record *domain.CompletionRecord) error {
	if record == nil || record.Path == "" {
		return domain.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO completions (id, path, version_ns, success, started_at_ns, ended_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.ID, record.Path,
		record.ObservedVersion.UnixNano(),
		boolToInt(record.Success),
		record.StartedAt.UnixNano(),
		record.EndedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording completion: %w", err)
	}
	return nil
}

// History returns recent completions, most recent first.
// An empty path returns completions for all paths.
func (s *processedStore) History(ctx context.Context, path string, limit int) ([]domain.CompletionRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	var rows *sql.Rows
	var err error
	if path == "" {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT id, path, version_ns, success, started_at_ns, ended_at_ns
			FROM completions
			ORDER BY ended_at_ns DESC
			LIMIT ?
		`, limit)
	} else {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT id, path, version_ns, success, started_at_ns, ended_at_ns
			FROM completions
			WHERE path = ?
			ORDER BY ended_at_ns DESC
			LIMIT ?
		`, path, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying completion history: %w", err)
	}
	defer rows.Close()

	var records []domain.CompletionRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		record, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completion history: %w", err)
	}
	return records, nil
}

// PruneHistory removes old completions beyond the retention limit.
// Keeps the most recent 'keep' completions per path.
func (s *processedStore) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM completions
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY path ORDER BY ended_at_ns DESC) as rn
				FROM completions
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning completion history: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// scanCompletion scans a completion record from *sql.Rows.
func scanCompletion(rows *sql.Rows) (*domain.CompletionRecord, error) {
	var record domain.CompletionRecord
	var versionNs, startedNs, endedNs int64
	var success int

	if err := rows.Scan(&record.ID, &record.Path, &versionNs,
		&success, &startedNs, &endedNs); err != nil {
		return nil, fmt.Errorf("scanning completion: %w", err)
	}

	record.ObservedVersion = time.Unix(0, versionNs)
	record.Success = success == 1
	record.StartedAt = time.Unix(0, startedNs)
	record.EndedAt = time.Unix(0, endedNs)
	return &record, nil
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
