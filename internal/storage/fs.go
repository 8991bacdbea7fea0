package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/postdesk/internal/checksum"
)

const (
	fileExt = ".json"

	// removedMark records that this store last removed the key.
	removedMark = "-"
)

// FS implements Store with one file per key under a root directory.
type FS struct {
	root string // absolute path to the data directory

	mu      sync.Mutex
	written map[string]string // key -> checksum of the last value written here, or removedMark
}

// NewFS creates a new FS store rooted at the given directory, creating it if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, written: make(map[string]string)}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string {
	return f.root
}

// pathFor maps a key onto its file. Keys never contain separators, so the
// result always stays under root.
func (f *FS) pathFor(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.root, key+fileExt), nil
}

// keyFor is the inverse of pathFor. ok is false for files that are not store entries.
func (f *FS) keyFor(path string) (string, bool) {
	name := filepath.Base(path)
	if filepath.Dir(path) != f.root || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, fileExt), true
}

// Get reads the file backing key.
func (f *FS) Get(_ context.Context, key string) (string, bool, error) {
	abs, err := f.pathFor(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set atomically writes the value: tmp file → fsync → rename.
func (f *FS) Set(_ context.Context, key, value string) error {
	abs, err := f.pathFor(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".postdesk-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(value); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	f.remember(key, checksum.Sum([]byte(value)))
	return nil
}

// Remove deletes the file backing key.
func (f *FS) Remove(_ context.Context, key string) error {
	abs, err := f.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	f.remember(key, removedMark)
	return nil
}

func (f *FS) remember(key, mark string) {
	f.mu.Lock()
	f.written[key] = mark
	f.mu.Unlock()
}

// ownsCurrent reports whether the file backing key still holds what this
// store last wrote, or is still absent after this store removed it.
func (f *FS) ownsCurrent(key string) bool {
	f.mu.Lock()
	mark, ok := f.written[key]
	f.mu.Unlock()
	if !ok {
		return false
	}
	data, err := os.ReadFile(filepath.Join(f.root, key+fileExt))
	if errors.Is(err, os.ErrNotExist) {
		return mark == removedMark
	}
	if err != nil {
		return false
	}
	return mark == checksum.Sum(data)
}
