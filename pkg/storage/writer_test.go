package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWriter(t *testing.T) *FSWriter {
	t.Helper()
	w, err := NewFSWriter(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return w
}

func TestSaveCollisionAvoidance(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	first, err := w.Save(ctx, []byte("first"), "upload.mp4")
	require.NoError(t, err)
	second, err := w.Save(ctx, []byte("second"), "upload.mp4")
	require.NoError(t, err)
	third, err := w.Save(ctx, []byte("third"), "upload.mp4")
	require.NoError(t, err)

	assert.Equal(t, "upload.mp4", filepath.Base(first))
	assert.Equal(t, "upload_1.mp4", filepath.Base(second))
	assert.Equal(t, "upload_2.mp4", filepath.Base(third))

	content, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content), "first file must not be overwritten")

	content, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestSaveWithoutExtension(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	_, err := w.Save(ctx, nil, "clip")
	require.NoError(t, err)
	second, err := w.Save(ctx, nil, "clip")
	require.NoError(t, err)
	assert.Equal(t, "clip_1", filepath.Base(second))
}

func TestSaveStaysInsideDirectory(t *testing.T) {
	w := newWriter(t)

	path, err := w.Save(context.Background(), []byte("x"), "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, w.Dir(), filepath.Dir(path))
	assert.Equal(t, "passwd", filepath.Base(path))
}

func TestSaveRejectsEmptyName(t *testing.T) {
	w := newWriter(t)

	for _, name := range []string{"", "  ", "/", ".."} {
		_, err := w.Save(context.Background(), []byte("x"), name)
		assert.ErrorIs(t, err, ErrSaveFailed, "name %q", name)
	}
}

func TestSaveFailsWhenDirectoryMissing(t *testing.T) {
	w := newWriter(t)
	require.NoError(t, os.RemoveAll(w.Dir()))

	_, err := w.Save(context.Background(), []byte("x"), "upload.mp4")
	assert.ErrorIs(t, err, ErrSaveFailed)
}

func TestSaveCancelledContext(t *testing.T) {
	w := newWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Save(ctx, []byte("x"), "upload.mp4")
	assert.ErrorIs(t, err, ErrSaveFailed)
}

func TestConcurrentSavesGetDistinctPaths(t *testing.T) {
	w := newWriter(t)

	const n = 32
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := w.Save(context.Background(), []byte{byte(i)}, "upload.mp4")
			assert.NoError(t, err)
			paths[i] = path
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, n)
}
