// Package jobs records the outcome of every upload request.
//
// The ledger is informational: the request pipeline writes to it on every
// state change but never fails a request because the ledger is unavailable.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by Get for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle stage a job reached.
type Status string

const (
	StatusReceived  Status = "received"
	StatusStored    Status = "stored"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Job describes one upload request.
type Job struct {
	ID          string    `json:"id"`
	ClientIP    string    `json:"client_ip"`
	Operation   string    `json:"operation,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	PayloadSize uint64    `json:"payload_size"`
	StoredPath  string    `json:"stored_path,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	Status      Status    `json:"status"`
	ErrorCode   int       `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New creates a received job for clientIP with a fresh ID.
func New(clientIP string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		ClientIP:  clientIP,
		Status:    StatusReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy of j.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// ListOptions filters List results.
type ListOptions struct {
	// Status restricts results to one status when non-empty.
	Status Status

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

func (o ListOptions) matches(j *Job) bool {
	return o.Status == "" || j.Status == o.Status
}

// Store persists jobs.
//
// List returns jobs newest first. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Close() error
}
