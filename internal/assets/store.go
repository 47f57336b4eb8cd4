// Package assets resolves image requests against a rooted directory of
// source files. The store is the only component that touches the
// filesystem; everything above it works with relative paths and byte
// buffers.
package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Store serves read-only access to source assets beneath a fixed root.
// Paths that resolve outside the root are rejected so request paths can be
// trusted by the rest of the pipeline.
type Store struct {
	root string
}

// NewStore initializes a store rooted at the provided directory. The root
// must exist and be a directory so path validation can reliably guard
// against escape attempts via ".." or symlinks.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("assets: root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("assets: resolve root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("assets: eval root symlinks: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("assets: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assets: root %q is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

// Root returns the canonical asset directory, primarily for observability
// and testing.
func (s *Store) Root() string { return s.root }

// Resolve normalizes the provided asset path ensuring it is contained
// within the root. Only relative paths are accepted; the resolved absolute
// path is returned for direct file access.
func (s *Store) Resolve(path string) (string, error) {
	if s == nil {
		return "", errors.New("assets: store is nil")
	}
	cleaned := filepath.Clean(strings.TrimSpace(path))
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("assets: empty path")
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("assets: path %q escapes root", path)
	}
	resolved := filepath.Join(s.root, cleaned)
	evaluated, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Guard against traversal even when the target does not exist so
			// Exists can answer false instead of surfacing an escape as a miss.
			if !s.contains(resolved) {
				return "", fmt.Errorf("assets: path %q escapes root", path)
			}
			return "", fmt.Errorf("assets: resolve %q: %w", path, err)
		}
		return "", fmt.Errorf("assets: resolve %q: %w", path, err)
	}
	if !s.contains(evaluated) {
		return "", fmt.Errorf("assets: path %q escapes root", path)
	}
	return evaluated, nil
}

// Exists reports whether the asset path resolves to a regular file inside
// the root.
func (s *Store) Exists(path string) bool {
	resolved, err := s.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.Mode().IsRegular()
}

// Size returns the byte size of the asset.
func (s *Store) Size(path string) (int64, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return 0, fmt.Errorf("assets: stat %q: %w", path, err)
	}
	return info.Size(), nil
}

// Open returns a stream over the asset for pass-through responses.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("assets: open %q: %w", path, err)
	}
	return f, nil
}

// ReadFile loads the full asset into memory for the transform pipeline.
func (s *Store) ReadFile(path string) ([]byte, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("assets: read %q: %w", path, err)
	}
	return data, nil
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if runtime.GOOS == "windows" && filepath.VolumeName(path) != filepath.VolumeName(s.root) {
		return false
	}
	return true
}
