package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/queue"
)

// JobHandler executes one job type. The payload is the producer-supplied
// document from the queue message.
type JobHandler func(ctx context.Context, job *jobs.Job, payload map[string]any) error

// JobRecords is the slice of the job store the processor drives.
type JobRecords interface {
	GetJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	FailJob(ctx context.Context, id uuid.UUID, message string) (*jobs.Job, error)
	BumpRetry(ctx context.Context, id uuid.UUID, message string) (*jobs.Job, error)
}

// DefaultHandlerTimeout bounds a single handler execution. It must stay well
// under the DLQ redrive threshold times the visibility timeout, or the broker
// will redeliver mid-run.
const DefaultHandlerTimeout = 15 * time.Minute

const (
	retryBackoffBase = 30 * time.Second
	retryBackoffMax  = 15 * time.Minute
)

// retryDelay returns the redelivery delay before the next attempt, doubling
// per recorded retry from retryBackoffBase up to retryBackoffMax.
func retryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := retryBackoffBase << (retryCount - 1)
	if d <= 0 || d > retryBackoffMax {
		return retryBackoffMax
	}
	return d
}

// Processor turns queue deliveries into job executions. It owns the retry
// decision: a failed handler releases the message for redelivery while retry
// budget remains, and dead-letters it once the budget is spent.
type Processor struct {
	records   JobRecords
	transport queue.Transport
	handlers  map[jobs.Type]JobHandler
	timeout   time.Duration
}

// NewProcessor creates a processor with no handlers registered.
func NewProcessor(records JobRecords, transport queue.Transport) *Processor {
	return &Processor{
		records:   records,
		transport: transport,
		handlers:  map[jobs.Type]JobHandler{},
		timeout:   DefaultHandlerTimeout,
	}
}

// Register installs the handler for a job type, replacing any previous one.
func (p *Processor) Register(jobType jobs.Type, handler JobHandler) {
	p.handlers[jobType] = handler
}

// envelope mirrors the outbox message body.
type envelope struct {
	JobID   string         `json:"jobId"`
	JobType string         `json:"jobType"`
	Payload map[string]any `json:"payload"`
}

// HandleMessage implements Handler. Returning nil acknowledges the delivery;
// poison messages are dead-lettered first so the ack never loses them.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.Message) error {
	jobID, env, err := p.decode(msg)
	if err != nil {
		slog.Warn("dead-lettering malformed message", "message_id", msg.MessageID, "error", err)
		if dlqErr := p.transport.SendToDeadLetter(ctx, msg.Body, err.Error()); dlqErr != nil {
			return fmt.Errorf("failed to dead-letter malformed message: %w", dlqErr)
		}
		return nil
	}

	job, err := p.records.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			// The record is gone; nothing to execute and nothing to retry.
			slog.Warn("discarding message for unknown job", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.Status == jobs.StatusCompleted || job.Status == jobs.StatusCancelled {
		slog.Info("discarding message for finished job", "job_id", jobID, "status", job.Status)
		return nil
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		reason := fmt.Sprintf("no handler registered for job type %q", job.Type)
		if _, err := p.records.FailJob(ctx, jobID, reason); err != nil {
			slog.Error("failed to fail job without handler", "job_id", jobID, "error", err)
		}
		if err := p.transport.SendToDeadLetter(ctx, msg.Body, reason); err != nil {
			return fmt.Errorf("failed to dead-letter message: %w", err)
		}
		return nil
	}

	job, err = p.records.MarkProcessing(ctx, jobID)
	if err != nil {
		// A concurrent cancel or fail wins the race; drop the message.
		current, getErr := p.records.GetJob(ctx, jobID)
		if getErr == nil && current.Status != jobs.StatusPending && current.Status != jobs.StatusProcessing {
			slog.Info("discarding message for finished job", "job_id", jobID, "status", current.Status)
			return nil
		}
		return fmt.Errorf("failed to mark job %s processing: %w", jobID, err)
	}

	slog.Info("job started", "job_id", job.ID, "job_type", job.Type,
		"attempt", job.RetryCount+1, "max_retries", job.MaxRetries)

	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	handlerErr := handler(hctx, job, env.Payload)
	cancel()

	if handlerErr == nil {
		if _, err := p.records.CompleteJob(ctx, jobID); err != nil {
			return fmt.Errorf("failed to complete job %s: %w", jobID, err)
		}
		slog.Info("job completed", "job_id", jobID, "job_type", job.Type)
		return nil
	}

	return p.handleFailure(ctx, msg, job, handlerErr)
}

// handleFailure retries or dead-letters a failed execution. While budget
// remains the job returns to pending and the delivery is released for
// redelivery after an exponential backoff; once exhausted it is failed and
// dead-lettered. A job cancelled while the handler ran stays cancelled and
// the delivery is discarded.
func (p *Processor) handleFailure(ctx context.Context, msg queue.Message, job *jobs.Job, handlerErr error) error {
	updated, err := p.records.BumpRetry(ctx, job.ID, handlerErr.Error())
	switch {
	case err == nil:
		delay := retryDelay(updated.RetryCount)
		slog.Warn("job failed, retrying", "job_id", job.ID, "job_type", job.Type,
			"retry_count", updated.RetryCount, "max_retries", updated.MaxRetries,
			"retry_in", delay, "error", handlerErr)
		if err := p.transport.ChangeVisibility(ctx, msg.ReceiptHandle, delay); err != nil {
			slog.Error("failed to release message for retry", "job_id", job.ID, "error", err)
		}
		// No ack: the message becomes visible again once the backoff lapses.
		return handlerErr

	case errors.Is(err, jobs.ErrMaxRetriesExceeded):
		reason := fmt.Sprintf("retries exhausted: %v", handlerErr)
		if _, failErr := p.records.FailJob(ctx, job.ID, reason); failErr != nil {
			slog.Error("failed to mark job failed", "job_id", job.ID, "error", failErr)
		}
		if dlqErr := p.transport.SendToDeadLetter(ctx, msg.Body, reason); dlqErr != nil {
			return fmt.Errorf("failed to dead-letter exhausted job %s: %w", job.ID, dlqErr)
		}
		slog.Error("job dead-lettered", "job_id", job.ID, "job_type", job.Type, "error", handlerErr)
		return nil

	default:
		// The bump was rejected by the status guard, not the budget. A cancel
		// (or concurrent exhaustion) that landed mid-execution wins; drop the
		// delivery instead of resurrecting the job.
		current, getErr := p.records.GetJob(ctx, job.ID)
		if getErr == nil && current.Terminal() {
			slog.Info("discarding delivery for finished job",
				"job_id", job.ID, "status", current.Status, "error", handlerErr)
			return nil
		}
		return fmt.Errorf("failed to record retry for job %s: %w", job.ID, err)
	}
}

// decode extracts the job id from the routing attribute, falling back to the
// message body.
func (p *Processor) decode(msg queue.Message) (uuid.UUID, envelope, error) {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return uuid.Nil, env, fmt.Errorf("malformed message body: %w", err)
	}

	raw := msg.Attributes[queue.AttrJobID]
	if raw == "" {
		raw = env.JobID
	}
	if raw == "" {
		return uuid.Nil, env, errors.New("message carries no job id")
	}

	jobID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, env, fmt.Errorf("malformed job id %q: %w", raw, err)
	}
	return jobID, env, nil
}
