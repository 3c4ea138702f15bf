// Package metrics provides Prometheus metrics collection for vidforge.
//
// Metrics are optional. When InitRegistry has not been called, components
// receive no-op implementations with zero overhead.
//
// Usage:
//
//	metrics.InitRegistry()
//	uploadMetrics := prometheus.NewUploadMetrics()
//	adapter := upload.New(config, deps, uploadMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry. Subsequent calls are ignored.
//
// The registry also carries the Go runtime and process collectors.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
