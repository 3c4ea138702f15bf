package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/capacity"
	"github.com/spf13/viper"
)

// ConfigureLogging applies the logging section to the global logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	return logger.SetOutput(cfg.Output)
}

// Watch reloads the configuration file whenever it changes and passes every
// valid result to onChange. Invalid edits are logged and skipped.
//
// Watching needs an existing file: configPath, or the default location when
// empty. The watch lasts for the life of the process.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot watch config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed: %s (%s)", e.Name, e.Op)

		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring config change: %v", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	logger.Debug("Watching config file %s", v.ConfigFileUsed())
	return nil
}

// ReloadHandler returns an onChange callback applying the settings that can
// change at runtime: the log level and the storage quota.
func ReloadHandler(gate *capacity.Gate) func(*Config) {
	return func(cfg *Config) {
		if logger.GetLevel().String() != cfg.Logging.Level {
			logger.SetLevel(cfg.Logging.Level)
			logger.Info("Log level set to %s", cfg.Logging.Level)
		}

		quota, err := capacity.ParseQuota(cfg.Storage.Quota)
		if err != nil {
			logger.Warn("Ignoring storage quota change: %v", err)
			return
		}
		if gate != nil && gate.Quota() != quota {
			gate.SetQuota(quota)
		}
	}
}
