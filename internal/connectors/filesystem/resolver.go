package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePath converts a command-line argument to an absolute local path.
// Handles file:// URIs and bare paths.
func ResolvePath(arg string) (string, error) {
	path := strings.TrimPrefix(arg, "file://")
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", arg, err)
	}
	return abs, nil
}
