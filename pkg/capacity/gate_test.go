package capacity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func TestUsedBytesRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"), 100)
	writeFile(t, filepath.Join(root, "nested", "b.mp4"), 250)
	writeFile(t, filepath.Join(root, "nested", "deeper", "c.mkv"), 50)

	gate := New(root, 1<<20)
	used, err := gate.UsedBytes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(400), used)
}

func TestHasCapacityBoundary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.mp4"), 300)

	const quota = 1000
	gate := New(root, quota)
	ctx := context.Background()

	remaining := uint64(quota - 300)
	assert.True(t, gate.HasCapacity(ctx, remaining), "exact remaining capacity must be admitted")
	assert.False(t, gate.HasCapacity(ctx, remaining+1), "one byte over must be rejected")
	assert.True(t, gate.HasCapacity(ctx, 0))
}

func TestOverQuota(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.mp4"), 2000)

	gate := New(root, 1000)
	decision := gate.Check(context.Background(), 0)
	assert.False(t, decision.Allowed)
	assert.Equal(t, uint64(2000), decision.Used)
	assert.Zero(t, decision.Remaining())
}

func TestScanFailureIsPermissive(t *testing.T) {
	gate := New(filepath.Join(t.TempDir(), "missing"), 1000)
	ctx := context.Background()

	_, err := gate.UsedBytes(ctx)
	require.Error(t, err)

	decision := gate.Check(ctx, 1000)
	assert.True(t, decision.Allowed)
	assert.Zero(t, decision.Used)
	assert.Error(t, decision.ScanErr)

	assert.False(t, gate.HasCapacity(ctx, 1001), "quota still applies when usage is unknown")
}

// The check reserves nothing: two concurrent admissions can jointly exceed the quota.
func TestConcurrentChecksCanOvershoot(t *testing.T) {
	root := t.TempDir()
	gate := New(root, 1000)
	ctx := context.Background()

	first := gate.HasCapacity(ctx, 800)
	second := gate.HasCapacity(ctx, 800)
	assert.True(t, first)
	assert.True(t, second)

	writeFile(t, filepath.Join(root, "one.mp4"), 800)
	writeFile(t, filepath.Join(root, "two.mp4"), 800)

	used, err := gate.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Greater(t, used, gate.Quota())
}

func TestSetQuota(t *testing.T) {
	gate := New(t.TempDir(), 10)
	ctx := context.Background()
	require.False(t, gate.HasCapacity(ctx, 100))

	gate.SetQuota(100)
	assert.Equal(t, uint64(100), gate.Quota())
	assert.True(t, gate.HasCapacity(ctx, 100))
}

func TestCancelledScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(root, 10).UsedBytes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"), 100)

	gate := New(root, 1000)
	gate.diskUsage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 5000, Free: 4000}, nil
	}

	stats, err := gate.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stats.Used)
	assert.Equal(t, uint64(900), stats.Remaining)
	assert.Equal(t, uint64(5000), stats.DiskTotal)
	assert.Equal(t, uint64(4000), stats.DiskFree)

	gate.diskUsage = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, errors.New("unsupported")
	}
	stats, err = gate.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DiskFree)
}

func TestParseQuota(t *testing.T) {
	tests := map[string]uint64{
		"4TiB":    4 << 40,
		"1 KiB":   1024,
		"1048576": 1 << 20,
		"2GB":     2_000_000_000,
	}
	for input, want := range tests {
		got, err := ParseQuota(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseQuota("lots")
	assert.Error(t, err)
}
