package config

import (
	"fmt"

	"github.com/marmos91/vidforge/pkg/adapter"
	"github.com/marmos91/vidforge/pkg/adapter/upload"
	"github.com/marmos91/vidforge/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// deps carries the collaborators built by the other factories. A nil
// uploadMetrics disables metrics.
func CreateAdapters(cfg *Config, deps upload.Dependencies, uploadMetrics metrics.UploadMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Upload.Enabled {
		if deps.BaseName == "" {
			deps.BaseName = cfg.Storage.BaseName
		}
		uploadAdapter, err := upload.New(cfg.Adapters.Upload, deps, uploadMetrics)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, uploadAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
