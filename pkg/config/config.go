package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/vidforge/pkg/adapter/upload"
	"github.com/spf13/viper"
)

// Config represents the complete vidforge configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (VIDFORGE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// The job ledger and the archive select an implementation with a Type field
// and carry that implementation's options in a map decoded by its factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Storage is where uploads are persisted and how much they may occupy
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Processing configures the ffmpeg processor
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`

	// Jobs selects the job ledger backend
	Jobs JobsConfig `mapstructure:"jobs" yaml:"jobs"`

	// Archive selects where processed outputs are copied
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// StorageConfig describes the upload storage root.
type StorageConfig struct {
	// Path is the storage root. Created on startup if missing.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`

	// Quota is the byte ceiling for everything under Path, either plain bytes
	// or a human size such as "4TiB" or "500GB".
	Quota string `mapstructure:"quota" yaml:"quota" validate:"required"`

	// BaseName is the file stem used for stored uploads.
	BaseName string `mapstructure:"base_name" yaml:"base_name" validate:"required,excludesall=/\\"`
}

// ProcessingConfig configures the media processor.
type ProcessingConfig struct {
	// FFmpegPath is the ffmpeg binary, looked up in PATH when not absolute
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path" validate:"required"`

	// OutputDir receives processed files
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`

	// Timeout bounds a single ffmpeg run
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// JobsConfig specifies the job ledger backend.
type JobsConfig struct {
	// Type specifies which ledger implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// ArchiveConfig specifies where processed outputs are archived.
type ArchiveConfig struct {
	// Type specifies the archive backend
	// Valid values: none, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=none s3"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Upload uses the upload.Config type directly to avoid duplication.
	Upload upload.Config `mapstructure:"upload" yaml:"upload"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing file is not an error: defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals, defaults and validates the configuration held by v.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: VIDFORGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("VIDFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every scalar key so environment variables apply
// even when the key is absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.shutdown_timeout",
		"metrics.enabled", "metrics.port",
		"storage.path", "storage.quota", "storage.base_name",
		"processing.ffmpeg_path", "processing.output_dir", "processing.timeout",
		"jobs.type", "archive.type",
		"adapters.upload.enabled", "adapters.upload.host", "adapters.upload.port",
		"adapters.upload.max_payload_bytes", "adapters.upload.read_timeout",
		"adapters.upload.write_timeout", "adapters.upload.accept_poll_interval",
		"adapters.upload.shutdown_timeout", "adapters.upload.metrics_log_interval",
		"adapters.upload.accept_rate", "adapters.upload.accept_burst",
	} {
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/vidforge, ~/.config/vidforge, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vidforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "vidforge")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
