package capacity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTP(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "upload.mp4"), 300)

	gate := New(root, 1000)
	gate.diskUsage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 8000, Free: 6000}, nil
	}

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, root, stats.Root)
	assert.Equal(t, uint64(300), stats.Used)
	assert.Equal(t, uint64(700), stats.Remaining)
	assert.Equal(t, uint64(6000), stats.DiskFree)
}

func TestServeHTTPRejectsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	New(t.TempDir(), 1000).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/storage", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
