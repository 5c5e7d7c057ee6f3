// Package outbox delivers staged job enqueues to the queue. Job rows and
// their outbox rows commit in one transaction; the relay drains pending rows
// afterwards, so a crash between commit and enqueue loses nothing. Delivery
// is at-least-once: a crash between enqueue and the sent-mark duplicates the
// message, and consumers dedupe via the job state machine.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/queue"
)

// Record is a staged enqueue awaiting delivery.
type Record struct {
	ID        int64
	JobID     uuid.UUID
	JobType   jobs.Type
	Payload   map[string]any
	CreatedAt time.Time
}

// Store is the persistence contract the relay drains.
type Store interface {
	// PendingOutbox returns undelivered rows, oldest first.
	PendingOutbox(ctx context.Context, limit int) ([]Record, error)
	// MarkOutboxSent stamps a row as delivered.
	MarkOutboxSent(ctx context.Context, id int64) error
	// SetQueueMessageID records the broker-assigned id on the job row.
	SetQueueMessageID(ctx context.Context, jobID uuid.UUID, messageID string) error
}

// envelope is the queue message body. Consumers route on the attributes and
// read the payload from here.
type envelope struct {
	JobID     string         `json:"jobId"`
	JobType   string         `json:"jobType"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp"`
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 50
)

// Relay polls the outbox table and publishes pending rows to the queue.
type Relay struct {
	store     Store
	transport queue.Transport
	interval  time.Duration
	batchSize int
	clock     func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize sets how many rows one drain pass delivers.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

// NewRelay creates a relay draining store into transport.
func NewRelay(store Store, transport queue.Transport, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		transport: transport,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.Flush(ctx); err != nil {
				slog.Error("outbox drain failed", "error", err, "delivered", n)
			}
		}
	}
}

// Flush delivers one batch of pending rows and reports how many were sent.
// A transport failure stops the batch; the remaining rows are retried on the
// next pass.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.store.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending outbox rows: %w", err)
	}

	sent := 0
	for _, rec := range pending {
		body, err := json.Marshal(envelope{
			JobID:     rec.JobID.String(),
			JobType:   string(rec.JobType),
			Payload:   rec.Payload,
			Timestamp: r.clock().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return sent, fmt.Errorf("failed to marshal outbox row %d: %w", rec.ID, err)
		}

		messageID, err := r.transport.Enqueue(ctx, body, map[string]string{
			queue.AttrJobID:   rec.JobID.String(),
			queue.AttrJobType: string(rec.JobType),
		})
		if err != nil {
			return sent, fmt.Errorf("failed to enqueue outbox row %d: %w", rec.ID, err)
		}

		if err := r.store.SetQueueMessageID(ctx, rec.JobID, messageID); err != nil {
			slog.Warn("failed to record queue message id", "job_id", rec.JobID, "error", err)
		}
		if err := r.store.MarkOutboxSent(ctx, rec.ID); err != nil {
			// The row stays pending and will be enqueued again. Consumers
			// tolerate the duplicate.
			slog.Warn("failed to mark outbox row sent", "outbox_id", rec.ID, "error", err)
		}

		slog.Debug("job enqueued", "job_id", rec.JobID, "job_type", rec.JobType, "message_id", messageID)
		sent++
	}

	return sent, nil
}
