package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/vidforge/pkg/capacity"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if _, err := capacity.ParseQuota(cfg.Storage.Quota); err != nil {
		return fmt.Errorf("storage.quota: %w", err)
	}

	if !cfg.Adapters.Upload.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapters.Upload.Port {
		return fmt.Errorf("metrics.port: %d is already used by the upload adapter", cfg.Metrics.Port)
	}

	if cfg.Archive.Type == "s3" {
		if bucket, _ := cfg.Archive.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("archive.s3.bucket: required when archive.type is s3")
		}
	}

	if cfg.Jobs.Type == "badger" {
		if path, _ := cfg.Jobs.Badger["db_path"].(string); path == "" {
			return fmt.Errorf("jobs.badger.db_path: required when jobs.type is badger")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
