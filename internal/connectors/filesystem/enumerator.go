// Package filesystem watches a local directory tree. The Enumerator lists
// documents with their modification times; the Notifier turns fsnotify
// events into scheduler wake-ups.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure Enumerator implements the interface.
var _ driven.SourceEnumerator = (*Enumerator)(nil)

// Enumerator lists the documents under a root directory. It keeps no state
// between calls.
type Enumerator struct {
	rootPath   string
	extensions map[string]struct{}
}

// NewEnumerator creates an enumerator for rootPath. Extensions are matched
// case-insensitively, with or without a leading dot. An empty list matches
// every file.
func NewEnumerator(rootPath string, extensions []string) *Enumerator {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts[ext] = struct{}{}
		}
	}
	return &Enumerator{
		rootPath:   rootPath,
		extensions: exts,
	}
}

// Root returns the watched directory.
func (e *Enumerator) Root() string {
	return e.rootPath
}

// Enumerate walks the root and returns every matching regular file with its
// modification time. Hidden files and directories are skipped. Files that
// vanish during the walk are ignored.
func (e *Enumerator) Enumerate(ctx context.Context) ([]domain.Item, error) {
	info, err := os.Stat(e.rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", e.rootPath)
	}

	var items []domain.Item
	err = filepath.WalkDir(e.rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			if path == e.rootPath {
				return walkErr
			}
			logger.Debug("enumerate: skipping %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != e.rootPath && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !e.matches(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// Removed between readdir and stat
			return nil
		}
		items = append(items, domain.Item{
			Path:    path,
			Version: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", e.rootPath, err)
	}
	return items, nil
}

// matches reports whether path has one of the configured extensions.
func (e *Enumerator) matches(path string) bool {
	if len(e.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := e.extensions[ext]
	return ok
}

// isHidden checks if a path contains a hidden component (starts with dot).
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
