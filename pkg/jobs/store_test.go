package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"badger": func() Store {
			s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{DBPath: filepath.Join(t.TempDir(), "jobs")})
			require.NoError(t, err)
			return s
		},
		"badger-in-memory": func() Store {
			s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("PutGet", func(t *testing.T) { testPutGet(t, factory()) })
			t.Run("NotFound", func(t *testing.T) { testNotFound(t, factory()) })
			t.Run("ListOrderAndFilter", func(t *testing.T) { testList(t, factory()) })
			t.Run("Isolation", func(t *testing.T) { testIsolation(t, factory()) })
		})
	}
}

func testPutGet(t *testing.T, s Store) {
	defer func() { require.NoError(t, s.Close()) }()
	ctx := context.Background()

	job := New("10.0.0.1")
	job.Operation = "compress"
	job.MediaType = "mp4"
	job.PayloadSize = 1000
	require.NoError(t, s.Put(ctx, job))

	job.Status = StatusProcessed
	job.OutputPath = "/tmp/processed_upload.mp4"
	require.NoError(t, s.Put(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, got.Status)
	assert.Equal(t, "10.0.0.1", got.ClientIP)
	assert.Equal(t, uint64(1000), got.PayloadSize)
	assert.Equal(t, "/tmp/processed_upload.mp4", got.OutputPath)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func testNotFound(t *testing.T, s Store) {
	defer func() { require.NoError(t, s.Close()) }()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func testList(t *testing.T, s Store) {
	defer func() { require.NoError(t, s.Close()) }()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		job := New("10.0.0.1")
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			job.Status = StatusFailed
		}
		require.NoError(t, s.Put(ctx, job))
		ids = append(ids, job.ID)
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[3].ID)

	failed, err := s.List(ctx, ListOptions{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, ids[2], failed[0].ID)

	limited, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[3], limited[0].ID)
}

func testIsolation(t *testing.T, s Store) {
	defer func() { require.NoError(t, s.Close()) }()
	ctx := context.Background()

	job := New("10.0.0.9")
	require.NoError(t, s.Put(ctx, job))
	job.Status = StatusFailed

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, got.Status, "mutating the caller's copy must not change the store")
}

func TestBadgerStoreRequiresPath(t *testing.T) {
	_, err := NewBadgerStore(context.Background(), BadgerStoreConfig{})
	assert.Error(t, err)
}

func TestBadgerStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs")

	s, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: path})
	require.NoError(t, err)
	job := New("192.0.2.1")
	require.NoError(t, s.Put(ctx, job))
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: path})
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	got, err := reopened.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ClientIP, got.ClientIP)
}
