// Package storage persists uploaded payloads under collision-free names.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marmos91/vidforge/internal/logger"
)

// ErrSaveFailed wraps every persistence failure reported by a Writer.
var ErrSaveFailed = errors.New("save failed")

// maxProbes bounds the numeric suffix search.
const maxProbes = 1 << 20

// Writer persists a payload and returns the path it was stored at.
//
// Implementations must never overwrite an existing file.
type Writer interface {
	Save(ctx context.Context, payload []byte, suggestedName string) (string, error)
}

// FSWriter stores payloads as regular files in a single directory.
//
// Thread safety:
// Safe for concurrent use. Uniqueness is enforced by the filesystem through
// O_EXCL, so concurrent saves with the same name never share a path.
type FSWriter struct {
	dir  string
	perm os.FileMode
}

// NewFSWriter creates a writer rooted at dir, creating it if needed.
func NewFSWriter(dir string) (*FSWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	return &FSWriter{dir: dir, perm: 0644}, nil
}

// Dir returns the storage directory.
func (w *FSWriter) Dir() string {
	return w.dir
}

// Save writes payload to dir/suggestedName, or to name_1.ext, name_2.ext and
// so on when that name is taken. A partially written file is removed.
func (w *FSWriter) Save(ctx context.Context, payload []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	f, path, err := CreateUnique(w.dir, suggestedName, w.perm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		removePartial(path)
		return "", fmt.Errorf("%w: write %s: %v", ErrSaveFailed, path, err)
	}
	if err := f.Close(); err != nil {
		removePartial(path)
		return "", fmt.Errorf("%w: close %s: %v", ErrSaveFailed, path, err)
	}

	logger.Debug("Stored %d bytes at %s", len(payload), path)
	return path, nil
}

// CreateUnique creates a new file in dir named after name, appending _1, _2,
// ... before the extension until the name is free.
//
// The returned file is open for writing; the caller must close it.
func CreateUnique(dir, name string, perm os.FileMode) (*os.File, string, error) {
	clean, err := sanitizeName(name)
	if err != nil {
		return nil, "", err
	}

	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)

	for i := 0; i < maxProbes; i++ {
		candidate := clean
		if i > 0 {
			candidate = stem + "_" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}

	return nil, "", fmt.Errorf("no free name for %s in %s after %d attempts", clean, dir, maxProbes)
}

// sanitizeName reduces name to a single path element.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.TrimSpace(name)))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove partial file %s: %v", path, err)
	}
}
