package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/primepisodes/media-engine/internal/jobs"
)

// JobStore persists job records. Create and retry stage an outbox row in the
// same transaction as the job row, so a committed job always reaches the queue.
type JobStore struct {
	db *DatabaseConnection
}

func NewJobStore(db *DatabaseConnection) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, job_type, episode_id, file_id, status, progress,
	retry_count, max_retries, error_message, queue_message_id, payload,
	created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var j jobs.Job
	err := row.Scan(
		&j.ID, &j.Type, &j.EpisodeID, &j.FileID, &j.Status, &j.Progress,
		&j.RetryCount, &j.MaxRetries, &j.Error, &j.QueueMessageID, &j.Payload,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &j, nil
}

// CreateJob inserts the job row and its outbox row in one transaction.
func (s *JobStore) CreateJob(ctx context.Context, job *jobs.Job) error {
	payload := job.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, job_type, episode_id, file_id, status, progress,
			retry_count, max_retries, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.Type, job.EpisodeID, job.FileID, job.Status, job.Progress,
		job.RetryCount, job.MaxRetries, payload, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO job_outbox (job_id, job_type, payload, status)
		VALUES ($1, $2, $3, 'pending')`,
		job.ID, job.Type, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox row: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListJobs returns matching jobs newest-first plus the total match count.
func (s *JobStore) ListJobs(ctx context.Context, filter jobs.Filter) ([]*jobs.Job, int, error) {
	var (
		where []string
		args  []any
	)
	addFilter := func(column string, value any) {
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.EpisodeID != "" {
		addFilter("episode_id", filter.EpisodeID)
	}
	if filter.Status != "" {
		addFilter("status", filter.Status)
	}
	if filter.Type != "" {
		addFilter("job_type", filter.Type)
	}

	query := `SELECT ` + jobColumns + `, count(*) OVER() FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var (
		out   []*jobs.Job
		total int
	)
	for rows.Next() {
		var j jobs.Job
		err := rows.Scan(
			&j.ID, &j.Type, &j.EpisodeID, &j.FileID, &j.Status, &j.Progress,
			&j.RetryCount, &j.MaxRetries, &j.Error, &j.QueueMessageID, &j.Payload,
			&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// MarkProcessing flips a job to processing. started_at is stamped only on the
// first transition; a redelivered message keeps the original timestamp.
func (s *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'processing',
			started_at = COALESCE(started_at, now()),
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, jobs.ErrNotFound) {
		return s.transitionRejected(ctx, id, jobs.StatusProcessing)
	}
	return job, err
}

func (s *JobStore) CompleteJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'completed',
			progress = 100,
			completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, jobs.ErrNotFound) {
		return s.transitionRejected(ctx, id, jobs.StatusCompleted)
	}
	return job, err
}

func (s *JobStore) FailJob(ctx context.Context, id uuid.UUID, message string) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'failed',
			error_message = $2,
			completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+jobColumns,
		id, message,
	)
	job, err := scanJob(row)
	if errors.Is(err, jobs.ErrNotFound) {
		return s.transitionRejected(ctx, id, jobs.StatusFailed)
	}
	return job, err
}

// BumpRetry increments the retry count and returns the job to pending. Both
// guards live in SQL: the budget check so concurrent deliveries cannot both
// pass it, and the status check so a cancel landing mid-execution stays
// cancelled instead of being flipped back to pending.
func (s *JobStore) BumpRetry(ctx context.Context, id uuid.UUID, message string) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET retry_count = retry_count + 1,
			status = 'pending',
			error_message = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'processing' AND retry_count < max_retries
		RETURNING `+jobColumns,
		id, message,
	)
	job, err := scanJob(row)
	if errors.Is(err, jobs.ErrNotFound) {
		current, getErr := s.GetJob(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != jobs.StatusProcessing {
			if terr := jobs.ValidateTransition(current.Status, jobs.StatusPending); terr != nil {
				return nil, terr
			}
			return nil, fmt.Errorf("job %s is %s, not processing", id, current.Status)
		}
		return nil, jobs.ErrMaxRetriesExceeded
	}
	return job, err
}

// RetryJob is the operator retry: guarded increment, cleared error, progress
// reset, plus a fresh outbox row in the same transaction.
func (s *JobStore) RetryJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE jobs
		SET retry_count = retry_count + 1,
			status = 'pending',
			error_message = NULL,
			progress = 0,
			completed_at = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'failed' AND retry_count < max_retries
		RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			if _, getErr := s.GetJob(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, jobs.ErrRetryNotAllowed
		}
		return nil, err
	}

	payload := job.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_outbox (job_id, job_type, payload, status)
		VALUES ($1, $2, $3, 'pending')`,
		job.ID, job.Type, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbox row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) CancelJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'cancelled',
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, jobs.ErrNotFound) {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, jobs.ErrCancelNotAllowed
	}
	return job, err
}

// UpdateProgress raises progress while processing. Stale or out-of-order
// reports are ignored rather than rejected.
func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, $2),
			updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *JobStore) SetQueueMessageID(ctx context.Context, id uuid.UUID, messageID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET queue_message_id = $2,
			updated_at = now()
		WHERE id = $1`,
		id, messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to set queue message id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

// transitionRejected distinguishes a missing job from one whose current
// status blocked the guarded update. Re-applying the current status is
// treated as an idempotent no-op.
func (s *JobStore) transitionRejected(ctx context.Context, id uuid.UUID, to jobs.Status) (*jobs.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == to {
		return job, nil
	}
	if err := jobs.ValidateTransition(job.Status, to); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("job %s was not updated (status %s)", id, job.Status)
}
