// Package jobs holds the durable job record model and its state machine.
// The job record is bookkeeping independent of the queue transport: a queue
// message drives execution, the job row tracks what happened.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Type is the kind of work a job performs.
type Type string

const (
	TypeThumbnailGeneration Type = "thumbnail-generation"
	TypeVideoProcessing     Type = "video-processing"
	TypeBulkUpload          Type = "bulk-upload"
	TypeBulkExport          Type = "bulk-export"
	TypeDataImport          Type = "data-import"
)

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	switch t {
	case TypeThumbnailGeneration, TypeVideoProcessing, TypeBulkUpload, TypeBulkExport, TypeDataImport:
		return true
	}
	return false
}

// DefaultMaxRetries applies when a producer does not specify a retry budget.
const DefaultMaxRetries = 3

// Job is one unit of asynchronous work.
type Job struct {
	ID             uuid.UUID
	Type           Type
	EpisodeID      string
	FileID         *string
	Status         Status
	Progress       int // 0-100, monotonically non-decreasing while processing
	RetryCount     int
	MaxRetries     int
	Error          *string
	QueueMessageID *string
	Payload        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time // set exactly once, on first transition to processing
	CompletedAt    *time.Time // set when status becomes completed or failed
}

// CanRetry reports whether a retry request would be accepted.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.RetryCount < j.MaxRetries
}

// CanCancel reports whether a cancel request would be accepted.
func (j *Job) CanCancel() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// Terminal reports whether no further transitions are possible. A failed job
// is not terminal while it still has retries left.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return j.RetryCount >= j.MaxRetries
	}
	return false
}

// CanTransition reports whether the status change is legal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusFailed:
		// retry path
		return to == StatusPending
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// ValidateTransition returns an error for an illegal status change.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	return nil
}
