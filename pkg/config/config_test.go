package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/capacity"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "debug"

storage:
  path: "/srv/uploads"
  quota: "500GiB"

adapters:
  upload:
    enabled: true
    port: 6000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Storage.Path != "/srv/uploads" || cfg.Storage.Quota != "500GiB" {
		t.Errorf("Storage section not loaded: %+v", cfg.Storage)
	}
	if cfg.Storage.BaseName != "upload" {
		t.Errorf("Expected default base name 'upload', got %q", cfg.Storage.BaseName)
	}
	if cfg.Adapters.Upload.Port != 6000 {
		t.Errorf("Expected upload port 6000, got %d", cfg.Adapters.Upload.Port)
	}
	if cfg.Adapters.Upload.Host != "0.0.0.0" {
		t.Errorf("Expected default host 0.0.0.0, got %q", cfg.Adapters.Upload.Host)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
processing:
  timeout: 90s
adapters:
  upload:
    enabled: true
    read_timeout: 2m
    accept_poll_interval: 250ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Processing.Timeout != 90*time.Second {
		t.Errorf("Expected processing timeout 90s, got %v", cfg.Processing.Timeout)
	}
	if cfg.Adapters.Upload.ReadTimeout != 2*time.Minute {
		t.Errorf("Expected read timeout 2m, got %v", cfg.Adapters.Upload.ReadTimeout)
	}
	if cfg.Adapters.Upload.AcceptPollInterval != 250*time.Millisecond {
		t.Errorf("Expected poll interval 250ms, got %v", cfg.Adapters.Upload.AcceptPollInterval)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.Upload.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.Adapters.Upload.Port)
	}
	if cfg.Storage.Quota != "4TiB" {
		t.Errorf("Expected default quota 4TiB, got %q", cfg.Storage.Quota)
	}
}

func TestLoad_DefaultLocation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if ConfigExists() {
		t.Fatal("Expected no config at the default location")
	}
	if got, want := GetDefaultConfigPath(), filepath.Join(dir, "vidforge", "config.yaml"); got != want {
		t.Errorf("Expected default path %s, got %s", want, got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "vidforge"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(GetDefaultConfigPath(), []byte("storage:\n  base_name: clip\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.BaseName != "clip" {
		t.Errorf("Expected base name from default location, got %q", cfg.Storage.BaseName)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: [unterminated\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
jobs:
  type: "postgres"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected validation error for unknown job store type")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  quota: "1TiB"
`)
	t.Setenv("VIDFORGE_STORAGE_QUOTA", "10GiB")
	t.Setenv("VIDFORGE_ADAPTERS_UPLOAD_ENABLED", "true")
	t.Setenv("VIDFORGE_ADAPTERS_UPLOAD_PORT", "7000")
	t.Setenv("VIDFORGE_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.Quota != "10GiB" {
		t.Errorf("Expected quota from environment, got %q", cfg.Storage.Quota)
	}
	if cfg.Adapters.Upload.Port != 7000 {
		t.Errorf("Expected port from environment, got %d", cfg.Adapters.Upload.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format from environment, got %q", cfg.Logging.Format)
	}
}

func TestWatch_ReloadsQuota(t *testing.T) {
	path := writeConfig(t, "storage:\n  quota: \"1GiB\"\n")

	changes := make(chan *Config, 4)
	if err := Watch(path, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("storage:\n  quota: \"2GiB\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Storage.Quota == "2GiB" {
				return
			}
		case <-deadline:
			t.Fatal("Config change was not observed")
		}
	}
}

func TestWatch_RequiresFile(t *testing.T) {
	if err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}); err == nil {
		t.Fatal("Expected error when the config file does not exist")
	}
}

func TestReloadHandler(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel("INFO") })

	gate := capacity.New(t.TempDir(), 1<<30)
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "WARN"
	cfg.Storage.Quota = "2GiB"

	ReloadHandler(gate)(cfg)

	if gate.Quota() != 2<<30 {
		t.Errorf("Expected quota 2GiB, got %d", gate.Quota())
	}
	if logger.GetLevel() != logger.LevelWarn {
		t.Errorf("Expected WARN level, got %s", logger.GetLevel())
	}

	cfg.Storage.Quota = "not-a-size"
	ReloadHandler(gate)(cfg)
	if gate.Quota() != 2<<30 {
		t.Errorf("Invalid quota must not change the gate, got %d", gate.Quota())
	}
}
