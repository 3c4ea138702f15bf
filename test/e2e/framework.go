//go:build e2e

// Package e2e runs the whole vidforge stack, real ffmpeg included, behind a
// TCP listener and drives it with the wire client.
package e2e

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/adapter/upload"
	"github.com/marmos91/vidforge/pkg/config"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/marmos91/vidforge/pkg/server"
)

// TestServer is a running vidforge server with private storage directories.
type TestServer struct {
	Addr       string
	Config     *config.Config
	Jobs       jobs.Store
	StorageDir string
	OutputDir  string

	cancel context.CancelFunc
	done   chan error
}

// requireFFmpeg skips the test when no ffmpeg binary is on PATH.
func requireFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	return path
}

// StartTestServer builds the server from the default configuration, with
// quota overriding the default when non-empty.
func StartTestServer(t *testing.T, quota string) *TestServer {
	t.Helper()
	ffmpeg := requireFFmpeg(t)
	logger.SetLevel("WARN")

	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Storage.Path = filepath.Join(dir, "uploads")
	cfg.Processing.FFmpegPath = ffmpeg
	cfg.Processing.OutputDir = filepath.Join(dir, "processed")
	cfg.Adapters.Upload.Host = "127.0.0.1"
	cfg.Adapters.Upload.Port = 0
	cfg.Adapters.Upload.AcceptPollInterval = 50 * time.Millisecond
	cfg.Adapters.Upload.MetricsLogInterval = -1
	if quota != "" {
		cfg.Storage.Quota = quota
	}

	writer, gate, err := config.CreateStorage(&cfg.Storage)
	if err != nil {
		t.Fatalf("CreateStorage: %v", err)
	}
	proc, err := config.CreateProcessor(&cfg.Processing)
	if err != nil {
		t.Fatalf("CreateProcessor: %v", err)
	}
	t.Cleanup(proc.Cleanup)

	store := jobs.NewMemoryStore()
	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, upload.Dependencies{
		Capacity:  gate,
		Storage:   writer,
		Processor: proc,
		Jobs:      store,
	}, metricsResult.UploadMetrics)
	if err != nil {
		t.Fatalf("CreateAdapters: %v", err)
	}

	srv := server.New(nil, 5*time.Second)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			t.Fatalf("AddAdapter: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &TestServer{
		Config:     cfg,
		Jobs:       store,
		StorageDir: cfg.Storage.Path,
		OutputDir:  cfg.Processing.OutputDir,
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	go func() { ts.done <- srv.Serve(ctx) }()

	uploadAdapter := adapters[0].(*upload.Adapter)
	select {
	case <-uploadAdapter.Ready():
	case err := <-ts.done:
		t.Fatalf("server exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start listening")
	}
	ts.Addr = uploadAdapter.Addr().String()

	t.Cleanup(ts.Stop)
	return ts
}

// Stop cancels the server and waits for it to exit.
func (ts *TestServer) Stop() {
	ts.cancel()
	select {
	case err := <-ts.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("test server exited: %v", err)
		}
	case <-time.After(10 * time.Second):
		logger.Warn("test server did not stop in time")
	}
}

// SampleVideo renders a short mp4 with a test pattern and a tone.
func SampleVideo(t *testing.T, ffmpeg string) []byte {
	t.Helper()
	out := filepath.Join(t.TempDir(), "sample.mp4")
	cmd := exec.Command(ffmpeg, "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=10",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2",
		"-shortest", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot render a sample video: %v: %s", err, output)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read sample video: %v", err)
	}
	return data
}
