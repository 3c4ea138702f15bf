package config

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/archive"
	"github.com/marmos91/vidforge/pkg/capacity"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/marmos91/vidforge/pkg/processor"
	"github.com/marmos91/vidforge/pkg/storage"
	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a backend option map into out. Strings coming from
// environment variables are converted to the target field types.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// CreateJobStore creates the job ledger selected by cfg.Type.
//
// Supported types:
//   - "memory": process-local, lost on restart
//   - "badger": persistent BadgerDB ledger at badger.db_path
func CreateJobStore(ctx context.Context, cfg *JobsConfig) (jobs.Store, error) {
	switch cfg.Type {
	case "memory":
		return jobs.NewMemoryStore(), nil
	case "badger":
		var storeCfg jobs.BadgerStoreConfig
		if err := decodeOptions(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger job store config: %w", err)
		}
		if storeCfg.DBPath == "" && !storeCfg.InMemory {
			return nil, fmt.Errorf("badger job store: db_path is required")
		}
		store, err := jobs.NewBadgerStore(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger job store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown job store type: %q", cfg.Type)
	}
}

// s3ArchiveOptions is the shape of the archive.s3 option map.
type s3ArchiveOptions struct {
	archive.S3ClientConfig `mapstructure:",squash"`

	Bucket    string `mapstructure:"bucket"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CreateArchiver creates the archive backend selected by cfg.Type.
//
// Supported types:
//   - "none": outputs are not archived
//   - "s3": outputs are uploaded to an S3 compatible bucket
func CreateArchiver(ctx context.Context, cfg *ArchiveConfig) (archive.Archiver, error) {
	switch cfg.Type {
	case "", "none":
		return archive.Noop{}, nil
	case "s3":
		var opts s3ArchiveOptions
		if err := decodeOptions(cfg.S3, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode s3 archive config: %w", err)
		}
		if opts.Bucket == "" {
			return nil, fmt.Errorf("s3 archive: bucket is required")
		}

		client, err := archive.NewS3Client(ctx, opts.S3ClientConfig)
		if err != nil {
			return nil, err
		}

		archiver, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Client:    client,
			Bucket:    opts.Bucket,
			KeyPrefix: opts.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 archive: %w", err)
		}

		logger.Info("Archiving processed files to s3://%s/%s", opts.Bucket, opts.KeyPrefix)
		return archiver, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %q", cfg.Type)
	}
}

// CreateProcessor creates the ffmpeg processor and its output directory.
func CreateProcessor(cfg *ProcessingConfig) (*processor.FFmpeg, error) {
	proc, err := processor.NewFFmpeg(processor.FFmpegConfig{
		Binary:    cfg.FFmpegPath,
		OutputDir: cfg.OutputDir,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}
	return proc, nil
}

// CreateStorage creates the storage writer and the quota gate over the same root.
func CreateStorage(cfg *StorageConfig) (*storage.FSWriter, *capacity.Gate, error) {
	quota, err := capacity.ParseQuota(cfg.Quota)
	if err != nil {
		return nil, nil, err
	}

	writer, err := storage.NewFSWriter(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage writer: %w", err)
	}

	logger.Info("Storage root %s, quota %s", cfg.Path, humanize.IBytes(quota))
	return writer, capacity.New(cfg.Path, quota), nil
}
