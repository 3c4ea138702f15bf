package config

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/marmos91/vidforge/pkg/adapter/upload"
	"github.com/marmos91/vidforge/pkg/archive"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/marmos91/vidforge/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		store, err := CreateJobStore(ctx, &JobsConfig{Type: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &jobs.MemoryStore{}, store)
	})

	t.Run("Badger", func(t *testing.T) {
		store, err := CreateJobStore(ctx, &JobsConfig{
			Type:   "badger",
			Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "jobs")},
		})
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		job := jobs.New("127.0.0.1")
		require.NoError(t, store.Put(ctx, job))
		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("BadgerInMemoryFromStrings", func(t *testing.T) {
		store, err := CreateJobStore(ctx, &JobsConfig{
			Type:   "badger",
			Badger: map[string]any{"in_memory": "true"},
		})
		require.NoError(t, err)
		_ = store.Close()
	})

	t.Run("BadgerWithoutPath", func(t *testing.T) {
		_, err := CreateJobStore(ctx, &JobsConfig{Type: "badger"})
		assert.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := CreateJobStore(ctx, &JobsConfig{Type: "etcd"})
		assert.Error(t, err)
	})
}

func TestCreateArchiver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("None", func(t *testing.T) {
		a, err := CreateArchiver(ctx, &ArchiveConfig{Type: "none"})
		require.NoError(t, err)
		assert.IsType(t, archive.Noop{}, a)
	})

	t.Run("S3", func(t *testing.T) {
		backend := s3mem.New()
		server := httptest.NewServer(gofakes3.New(backend).Server())
		t.Cleanup(server.Close)
		require.NoError(t, backend.CreateBucket("outputs"))

		a, err := CreateArchiver(ctx, &ArchiveConfig{Type: "s3", S3: map[string]any{
			"region":            "us-east-1",
			"bucket":            "outputs",
			"key_prefix":        "vidforge/",
			"endpoint":          server.URL,
			"access_key_id":     "test",
			"secret_access_key": "test",
			"max_retries":       "1",
		}})
		require.NoError(t, err)
		assert.IsType(t, &archive.S3Archiver{}, a)
	})

	t.Run("S3MissingBucket", func(t *testing.T) {
		_, err := CreateArchiver(ctx, &ArchiveConfig{Type: "s3", S3: map[string]any{"region": "us-east-1"}})
		assert.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := CreateArchiver(ctx, &ArchiveConfig{Type: "ftp"})
		assert.Error(t, err)
	})
}

func TestCreateStorage(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")

	writer, gate, err := CreateStorage(&StorageConfig{Path: root, Quota: "1GiB", BaseName: "upload"})
	require.NoError(t, err)
	assert.Equal(t, root, writer.Dir())
	assert.Equal(t, root, gate.Root())
	assert.Equal(t, uint64(1<<30), gate.Quota())
	assert.DirExists(t, root)

	_, _, err = CreateStorage(&StorageConfig{Path: root, Quota: "plenty"})
	assert.Error(t, err)
}

func TestCreateProcessor(t *testing.T) {
	out := filepath.Join(t.TempDir(), "processed")

	proc, err := CreateProcessor(&ProcessingConfig{FFmpegPath: "ffmpeg", OutputDir: out, Timeout: time.Minute})
	require.NoError(t, err)
	assert.NotNil(t, proc)
	assert.DirExists(t, out)
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Storage.BaseName = "clip"

	writer, gate, err := CreateStorage(&cfg.Storage)
	require.NoError(t, err)
	proc, err := CreateProcessor(&ProcessingConfig{OutputDir: t.TempDir(), Timeout: time.Minute})
	require.NoError(t, err)

	adapters, err := CreateAdapters(cfg, upload.Dependencies{
		Capacity:  gate,
		Storage:   writer,
		Processor: proc,
	}, metrics.NewNoopUploadMetrics())
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "UPLOAD", adapters[0].Protocol())
	assert.Equal(t, 5000, adapters[0].Port())

	cfg.Adapters.Upload.Enabled = false
	_, err = CreateAdapters(cfg, upload.Dependencies{}, nil)
	assert.Error(t, err)
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())
	assert.Nil(t, result.Server)
	assert.NotNil(t, result.UploadMetrics)
}
