package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Defaults", func(*Config) {}, ""},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "TRACE" }, "Level"},
		{"InvalidLogFormat", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"ZeroShutdownTimeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "ShutdownTimeout"},
		{"MissingStoragePath", func(c *Config) { c.Storage.Path = "" }, "Path"},
		{"BaseNameWithSeparator", func(c *Config) { c.Storage.BaseName = "../escape" }, "BaseName"},
		{"UnparsableQuota", func(c *Config) { c.Storage.Quota = "lots" }, "storage.quota"},
		{"UnknownJobStore", func(c *Config) { c.Jobs.Type = "redis" }, "Type"},
		{"BadgerWithoutPath", func(c *Config) {
			c.Jobs.Type = "badger"
			c.Jobs.Badger = map[string]any{}
		}, "db_path"},
		{"UnknownArchive", func(c *Config) { c.Archive.Type = "gcs" }, "Type"},
		{"S3WithoutBucket", func(c *Config) { c.Archive.Type = "s3" }, "bucket"},
		{"S3WithBucket", func(c *Config) {
			c.Archive.Type = "s3"
			c.Archive.S3["bucket"] = "outputs"
		}, ""},
		{"UploadPortOutOfRange", func(c *Config) { c.Adapters.Upload.Port = 70000 }, "Port"},
		{"NegativeAcceptRate", func(c *Config) { c.Adapters.Upload.AcceptRate = -1 }, "AcceptRate"},
		{"NoAdapters", func(c *Config) { c.Adapters.Upload.Enabled = false }, "adapter"},
		{"MetricsPortClash", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.Adapters.Upload.Port
		}, "metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
