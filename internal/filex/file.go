// Package filex contains small filesystem helpers shared by the engine and
// the CLI.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// JoinInside joins name onto base and rejects results that escape base.
// Archive manifests come from disk and may be hostile, so extraction paths
// must stay confined to the output directory.
func JoinInside(base, name string) (string, error) {
	cleanBase := filepath.Clean(base)
	path := filepath.Join(cleanBase, filepath.FromSlash(name))

	rel, err := filepath.Rel(cleanBase, path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", name, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes output directory", name)
	}
	return path, nil
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
