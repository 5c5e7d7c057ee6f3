package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Filter narrows job listings.
type Filter struct {
	EpisodeID string
	Status    Status
	Type      Type
	Limit     int
	Offset    int
}

// Store is the persistence contract for job records. The create and retry
// operations also stage an outbox row in the same transaction, so a committed
// job is always eventually enqueued (see internal/outbox).
type Store interface {
	// CreateJob inserts the job row and its outbox row in one transaction.
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, filter Filter) ([]*Job, int, error)
	// MarkProcessing flips a job to processing and stamps started_at exactly
	// once (first transition only).
	MarkProcessing(ctx context.Context, id uuid.UUID) (*Job, error)
	// CompleteJob marks the job completed and stamps completed_at.
	CompleteJob(ctx context.Context, id uuid.UUID) (*Job, error)
	// FailJob marks the job failed with a message and stamps completed_at.
	FailJob(ctx context.Context, id uuid.UUID, message string) (*Job, error)
	// BumpRetry increments retry_count and returns the job to pending without
	// re-enqueueing; used by the worker when the in-flight message itself is
	// released back to the queue. Guarded on max_retries and on the job still
	// being processing, so a concurrent cancel keeps the job cancelled.
	BumpRetry(ctx context.Context, id uuid.UUID, message string) (*Job, error)
	// RetryJob is the operator retry: guarded increment, clears the error,
	// resets progress, returns to pending, and stages a fresh outbox row.
	RetryJob(ctx context.Context, id uuid.UUID) (*Job, error)
	// CancelJob cancels a pending or processing job; the guard is in SQL so
	// concurrent transitions cannot race past it.
	CancelJob(ctx context.Context, id uuid.UUID) (*Job, error)
	// UpdateProgress raises progress (never lowers it) while processing.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// SetQueueMessageID records the broker-assigned id after enqueue.
	SetQueueMessageID(ctx context.Context, id uuid.UUID, messageID string) error
}

// CreateParams are the producer-supplied fields for a new job.
type CreateParams struct {
	Type       Type
	EpisodeID  string
	FileID     *string
	Payload    map[string]any
	MaxRetries int
}

// Service owns job invariants: initial state, transition legality, retry
// budget. Storage-layer errors propagate to the caller unretried.
type Service struct {
	store Store
	clock func() time.Time
	idGen func() uuid.UUID
}

// NewService creates a job service backed by store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		clock: time.Now,
		idGen: uuid.New,
	}
}

// Create validates params and persists a new pending job plus its outbox row.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Job, error) {
	if params.Type == "" {
		return nil, &ValidationError{Field: "jobType"}
	}
	if !params.Type.Valid() {
		return nil, &ValidationError{Field: "jobType", Reason: "unknown job type " + string(params.Type)}
	}
	if params.EpisodeID == "" {
		return nil, &ValidationError{Field: "episodeId"}
	}

	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := s.clock()
	job := &Job{
		ID:         s.idGen(),
		Type:       params.Type,
		EpisodeID:  params.EpisodeID,
		FileID:     params.FileID,
		Status:     StatusPending,
		Progress:   0,
		RetryCount: 0,
		MaxRetries: maxRetries,
		Payload:    params.Payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	slog.Info("job created", "job_id", job.ID, "job_type", job.Type, "episode_id", job.EpisodeID)
	return job, nil
}

// Get fetches a job by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	if id == uuid.Nil {
		return nil, &ValidationError{Field: "id"}
	}
	return s.store.GetJob(ctx, id)
}

// List returns jobs matching the filter plus the total match count.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Job, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.store.ListJobs(ctx, filter)
}

// Retry re-queues a failed job. Rejected unless status=failed with retry
// budget remaining; on success the retry count is incremented, the error is
// cleared, progress resets to 0 and the job re-enters pending.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != StatusFailed {
		return nil, ErrRetryNotAllowed
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, ErrMaxRetriesExceeded
	}

	updated, err := s.store.RetryJob(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("job retry scheduled", "job_id", id,
		"old_status", job.Status, "new_status", updated.Status,
		"retry_count", updated.RetryCount, "max_retries", updated.MaxRetries)
	return updated, nil
}

// Cancel terminates a pending or processing job. Cooperative only: an
// already-running handler cannot be interrupted, but the record will accept
// no further transitions.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.CanCancel() {
		return nil, ErrCancelNotAllowed
	}

	updated, err := s.store.CancelJob(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("job cancelled", "job_id", id, "old_status", job.Status, "new_status", updated.Status)
	return updated, nil
}

// Progress raises the completion percentage of a processing job.
func (s *Service) Progress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return &ValidationError{Field: "progress", Reason: "must be between 0 and 100"}
	}
	return s.store.UpdateProgress(ctx, id, progress)
}
