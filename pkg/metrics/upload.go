package metrics

import "time"

// UploadMetrics observes the upload adapter.
//
// An implementation is optional: the adapter falls back to a no-op when none
// is provided.
type UploadMetrics interface {
	// RecordRequest records a finished request. code is empty on success and
	// the failure code name (e.g. "storage_full") otherwise. operation is
	// empty when the request failed before its metadata was parsed.
	RecordRequest(operation string, duration time.Duration, code string)

	// RecordRequestStart and RecordRequestEnd track in-flight requests.
	RecordRequestStart()
	RecordRequestEnd()

	// RecordBytesReceived counts payload bytes read from clients.
	RecordBytesReceived(bytes uint64)

	// RecordBytesSent counts payload bytes returned to clients.
	RecordBytesSent(bytes uint64)

	// RecordStorageUsage publishes the last observed storage usage and quota.
	RecordStorageUsage(used, quota uint64)

	// RecordStorageScanFailure counts capacity checks that could not scan the
	// storage root and therefore admitted without enforcing the quota.
	RecordStorageScanFailure()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted counts connections admitted to the pipeline.
	RecordConnectionAccepted()

	// RecordConnectionRejected counts connections turned away before the
	// pipeline, by reason ("busy" or "rate_limited").
	RecordConnectionRejected(reason string)

	// RecordConnectionClosed counts connections that finished.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by the shutdown timeout.
	RecordConnectionForceClosed()
}

// NewNoopUploadMetrics returns an UploadMetrics that records nothing.
func NewNoopUploadMetrics() UploadMetrics {
	return noopUploadMetrics{}
}

type noopUploadMetrics struct{}

func (noopUploadMetrics) RecordRequest(string, time.Duration, string) {}
func (noopUploadMetrics) RecordRequestStart()                         {}
func (noopUploadMetrics) RecordRequestEnd()                           {}
func (noopUploadMetrics) RecordBytesReceived(uint64)                  {}
func (noopUploadMetrics) RecordBytesSent(uint64)                      {}
func (noopUploadMetrics) RecordStorageUsage(uint64, uint64)           {}
func (noopUploadMetrics) RecordStorageScanFailure()                   {}
func (noopUploadMetrics) SetActiveConnections(int32)                  {}
func (noopUploadMetrics) RecordConnectionAccepted()                   {}
func (noopUploadMetrics) RecordConnectionRejected(string)             {}
func (noopUploadMetrics) RecordConnectionClosed()                     {}
func (noopUploadMetrics) RecordConnectionForceClosed()                {}
