package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/protocol"
	"github.com/marmos91/vidforge/pkg/storage"
)

// OutputPrefix is prepended to the stem of every processed file.
const OutputPrefix = "processed_"

// FFmpegConfig configures the ffmpeg-backed processor.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable, resolved through PATH when not absolute.
	Binary string

	// OutputDir receives processed files.
	OutputDir string

	// Timeout bounds one ffmpeg run. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// FFmpeg runs ffmpeg as a subprocess for each request.
//
// Thread safety:
// Safe for concurrent use. Running processes are tracked so Cleanup can
// terminate them during shutdown.
type FFmpeg struct {
	cfg FFmpegConfig

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// NewFFmpeg creates the processor and its output directory.
func NewFFmpeg(cfg FFmpegConfig) (*FFmpeg, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("ffmpeg output directory is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", cfg.OutputDir, err)
	}

	return &FFmpeg{
		cfg:       cfg,
		processes: make(map[string]*exec.Cmd),
	}, nil
}

// Process runs ffmpeg on inputPath and returns the output file path.
//
// The output is named processed_<input stem>.<output media type> inside the
// output directory, with a numeric suffix when that name is taken.
func (f *FFmpeg) Process(ctx context.Context, inputPath string, op protocol.Operation) (string, error) {
	if op == nil {
		return "", fmt.Errorf("%w: no operation", ErrProcessingFailed)
	}

	inputExt := strings.TrimPrefix(filepath.Ext(inputPath), ".")
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputName := OutputPrefix + stem + "." + op.OutputMediaType(inputExt)

	// Reserve the name so concurrent requests never target the same output.
	placeholder, outputPath, err := storage.CreateUnique(f.cfg.OutputDir, outputName, 0644)
	if err != nil {
		return "", fmt.Errorf("%w: reserve output: %v", ErrProcessingFailed, err)
	}
	_ = placeholder.Close()

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	args := BuildArgs(inputPath, outputPath, op)
	cmd := exec.CommandContext(ctx, f.cfg.Binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.track(outputPath, cmd)
	defer f.untrack(outputPath)

	start := time.Now()
	logger.Debug("Running %s %s", f.cfg.Binary, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		removeOutput(outputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %s on %s: %v", ErrProcessingFailed, op.Kind(), filepath.Base(inputPath), ctxErr)
		}
		logger.Error("ffmpeg %s failed for %s: %v: %s", op.Kind(), inputPath, err, strings.TrimSpace(stderr.String()))
		return "", fmt.Errorf("%w: %s on %s: %v", ErrProcessingFailed, op.Kind(), filepath.Base(inputPath), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		removeOutput(outputPath)
		return "", fmt.Errorf("%w: %s produced no output", ErrProcessingFailed, op.Kind())
	}

	logger.Info("Processed %s (%s) into %s in %s", filepath.Base(inputPath), op.Kind(), filepath.Base(outputPath), time.Since(start).Round(time.Millisecond))
	return outputPath, nil
}

// Cleanup kills every running ffmpeg process.
func (f *FFmpeg) Cleanup() {
	f.processMu.Lock()
	defer f.processMu.Unlock()

	for path, cmd := range f.processes {
		if cmd.Process != nil {
			logger.Info("Killing ffmpeg process for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logger.Warn("Failed to kill ffmpeg process for %s: %v", path, err)
			}
		}
	}
}

// Running returns the number of ffmpeg processes in flight.
func (f *FFmpeg) Running() int {
	f.processMu.Lock()
	defer f.processMu.Unlock()
	return len(f.processes)
}

func (f *FFmpeg) track(key string, cmd *exec.Cmd) {
	f.processMu.Lock()
	f.processes[key] = cmd
	f.processMu.Unlock()
}

func (f *FFmpeg) untrack(key string) {
	f.processMu.Lock()
	delete(f.processes, key)
	f.processMu.Unlock()
}

// BuildArgs returns the ffmpeg argument list for op.
func BuildArgs(inputPath, outputPath string, op protocol.Operation) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}

	switch o := op.(type) {
	case protocol.Compress:
		args = append(args, "-i", inputPath, "-vcodec", "libx264", "-crf", "28", "-preset", "fast")

	case protocol.Resize:
		args = append(args, "-i", inputPath, "-vf", fmt.Sprintf("scale=%d:%d", o.Width, o.Height), "-c:a", "copy")

	case protocol.ChangeAspectRatio:
		args = append(args, "-i", inputPath, "-aspect", o.AspectRatio, "-c", "copy")

	case protocol.ConvertToAudio:
		args = append(args, "-i", inputPath, "-vn", "-acodec", "libmp3lame", "-q:a", "2")

	case protocol.CreateClip:
		args = append(args, "-ss", formatSeconds(o.Start), "-to", formatSeconds(o.End), "-i", inputPath)
		if o.Format == protocol.ClipFormatGIF {
			args = append(args, "-vf", "fps=10,scale=480:-1:flags=lanczos", "-loop", "0")
		} else {
			args = append(args, "-c:v", "libvpx-vp9", "-crf", "32", "-b:v", "0", "-c:a", "libopus")
		}
	}

	return append(args, outputPath)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func removeOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove output %s: %v", path, err)
	}
}
