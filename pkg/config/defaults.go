package config

import (
	"strings"
	"time"

	"github.com/marmos91/vidforge/pkg/adapter/upload"
)

// Default values shared by ApplyDefaults and the generated config file.
const (
	DefaultUploadPort  = 5000
	DefaultUploadHost  = "0.0.0.0"
	DefaultMetricsPort = 9090
	DefaultQuota       = "4TiB"
	DefaultBaseName    = "upload"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced; explicit values are preserved. Backend option
// maps are pre-populated so a generated config file documents them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyStorageDefaults(&cfg.Storage)
	applyProcessingDefaults(&cfg.Processing)
	applyJobsDefaults(&cfg.Jobs)
	applyArchiveDefaults(&cfg.Archive)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Path == "" {
		cfg.Path = "uploads"
	}
	if cfg.Quota == "" {
		cfg.Quota = DefaultQuota
	}
	if cfg.BaseName == "" {
		cfg.BaseName = DefaultBaseName
	}
}

func applyProcessingDefaults(cfg *ProcessingConfig) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "processed"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
}

func applyJobsDefaults(cfg *JobsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "jobs"
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.S3["key_prefix"]; !ok {
		cfg.S3["key_prefix"] = "vidforge/"
	}
	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = 5
	}
}

// applyAdaptersDefaults enables the upload adapter when it looks
// unconfigured (port 0), so a config without an adapters section still serves.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if !cfg.Upload.Enabled && cfg.Upload.Port == 0 {
		cfg.Upload.Enabled = true
	}
	applyUploadDefaults(&cfg.Upload)
}

func applyUploadDefaults(cfg *upload.Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultUploadHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultUploadPort
	}
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = upload.DefaultMaxPayloadBytes
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.AcceptPollInterval == 0 {
		cfg.AcceptPollInterval = time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Upload: upload.Config{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
