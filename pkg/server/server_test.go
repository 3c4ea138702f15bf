package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	stopped atomic.Int32
	stopCh  chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopCh: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stopCh:
	}
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	if f.stopped.Add(1) == 1 {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func TestAddAdapterRejectsConflicts(t *testing.T) {
	s := New(nil, time.Second)
	require.NoError(t, s.AddAdapter(newFakeAdapter("UPLOAD", 5000)))

	assert.Error(t, s.AddAdapter(newFakeAdapter("UPLOAD", 5001)), "duplicate protocol")
	assert.Error(t, s.AddAdapter(newFakeAdapter("OTHER", 5000)), "duplicate port")
	assert.NoError(t, s.AddAdapter(newFakeAdapter("EPHEMERAL", 0)))
	assert.Error(t, s.AddAdapter(nil))
	assert.Len(t, s.Adapters(), 2)
}

func TestServeStopsAdaptersOnCancel(t *testing.T) {
	s := New(nil, time.Second)
	first, second := newFakeAdapter("A", 1), newFakeAdapter("B", 2)
	require.NoError(t, s.AddAdapter(first))
	require.NoError(t, s.AddAdapter(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), first.stopped.Load())
	assert.Equal(t, int32(1), second.stopped.Load())

	assert.Error(t, s.Serve(context.Background()), "second Serve")
	assert.Error(t, s.AddAdapter(newFakeAdapter("C", 3)), "add after Serve")
}

func TestServeStopsEverythingWhenAnAdapterFails(t *testing.T) {
	s := New(nil, time.Second)
	healthy := newFakeAdapter("HEALTHY", 1)
	broken := newFakeAdapter("BROKEN", 2)
	broken.serveErr = errors.New("bind: address already in use")
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKEN")
	assert.Equal(t, int32(1), healthy.stopped.Load())
}

func TestServeRequiresAdapters(t *testing.T) {
	assert.Error(t, New(nil, 0).Serve(context.Background()))
}
