// Package prometheus provides the Prometheus-backed metrics implementations.
package prometheus

import (
	"time"

	"github.com/marmos91/vidforge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type uploadMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       prometheus.Gauge
	bytesTransferred       *prometheus.CounterVec
	storageUsedBytes       prometheus.Gauge
	storageQuotaBytes      prometheus.Gauge
	storageScanFailures    prometheus.Counter
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewUploadMetrics registers upload metrics in the global registry.
//
// Returns a no-op implementation when metrics are disabled.
func NewUploadMetrics() metrics.UploadMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopUploadMetrics()
	}
	return NewUploadMetricsWith(metrics.GetRegistry())
}

// NewUploadMetricsWith registers upload metrics in reg.
func NewUploadMetricsWith(reg prometheus.Registerer) metrics.UploadMetrics {
	factory := promauto.With(reg)

	return &uploadMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidforge_upload_requests_total",
				Help: "Total number of upload requests by operation, status and error code",
			},
			[]string{"operation", "status", "error_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vidforge_upload_request_duration_seconds",
				Help: "Duration of upload requests from first header byte to response, in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					0.5,
					1,
					5,
					15,
					60,
					300, // 5m, long transcodes
				},
			},
			[]string{"operation"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidforge_upload_requests_in_flight",
				Help: "Current number of upload requests being processed",
			},
		),
		bytesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidforge_upload_bytes_total",
				Help: "Total payload bytes transferred",
			},
			[]string{"direction"}, // received or sent
		),
		storageUsedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidforge_storage_used_bytes",
				Help: "Storage usage observed by the last capacity check",
			},
		),
		storageQuotaBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidforge_storage_quota_bytes",
				Help: "Configured storage quota",
			},
		),
		storageScanFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidforge_storage_scan_failures_total",
				Help: "Total number of capacity checks that admitted without a usage scan",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidforge_upload_active_connections",
				Help: "Current number of active upload connections",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidforge_upload_connections_accepted_total",
				Help: "Total number of upload connections admitted",
			},
		),
		connectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidforge_upload_connections_rejected_total",
				Help: "Total number of upload connections rejected before the pipeline",
			},
			[]string{"reason"},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidforge_upload_connections_closed_total",
				Help: "Total number of upload connections closed",
			},
		),
		connectionsForceClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidforge_upload_connections_force_closed_total",
				Help: "Total number of upload connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *uploadMetrics) RecordRequest(operation string, duration time.Duration, code string) {
	status := "success"
	if code != "" {
		status = "error"
	}
	if operation == "" {
		operation = "unknown"
	}

	m.requestsTotal.WithLabelValues(operation, status, code).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *uploadMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *uploadMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *uploadMetrics) RecordBytesReceived(bytes uint64) {
	m.bytesTransferred.WithLabelValues("received").Add(float64(bytes))
}

func (m *uploadMetrics) RecordBytesSent(bytes uint64) {
	m.bytesTransferred.WithLabelValues("sent").Add(float64(bytes))
}

func (m *uploadMetrics) RecordStorageUsage(used, quota uint64) {
	m.storageUsedBytes.Set(float64(used))
	m.storageQuotaBytes.Set(float64(quota))
}

func (m *uploadMetrics) RecordStorageScanFailure() {
	m.storageScanFailures.Inc()
}

func (m *uploadMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *uploadMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *uploadMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *uploadMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *uploadMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
