package config

import (
	"github.com/marmos91/vidforge/pkg/metrics"
	promMetrics "github.com/marmos91/vidforge/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// UploadMetrics is the collector for the upload adapter (never nil, noop if disabled)
	UploadMetrics metrics.UploadMetrics
}

// InitializeMetrics creates the metrics server and collectors when metrics
// are enabled, and no-op collectors otherwise.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			UploadMetrics: metrics.NewNoopUploadMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		UploadMetrics: promMetrics.NewUploadMetrics(),
	}
}
