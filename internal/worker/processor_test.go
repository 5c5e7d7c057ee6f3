package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/queue"
)

// fakeRecords mirrors the store guards the processor relies on.
type fakeRecords struct {
	jobs map[uuid.UUID]*jobs.Job
}

func newFakeRecords(list ...*jobs.Job) *fakeRecords {
	r := &fakeRecords{jobs: map[uuid.UUID]*jobs.Job{}}
	for _, j := range list {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeRecords) GetJob(_ context.Context, id uuid.UUID) (*jobs.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRecords) MarkProcessing(_ context.Context, id uuid.UUID) (*jobs.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	if j.Status != jobs.StatusPending && j.Status != jobs.StatusProcessing {
		return nil, jobs.ValidateTransition(j.Status, jobs.StatusProcessing)
	}
	j.Status = jobs.StatusProcessing
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRecords) CompleteJob(_ context.Context, id uuid.UUID) (*jobs.Job, error) {
	j := r.jobs[id]
	j.Status = jobs.StatusCompleted
	j.Progress = 100
	cp := *j
	return &cp, nil
}

func (r *fakeRecords) FailJob(_ context.Context, id uuid.UUID, message string) (*jobs.Job, error) {
	j := r.jobs[id]
	j.Status = jobs.StatusFailed
	j.Error = &message
	cp := *j
	return &cp, nil
}

func (r *fakeRecords) BumpRetry(_ context.Context, id uuid.UUID, message string) (*jobs.Job, error) {
	j := r.jobs[id]
	if j.Status != jobs.StatusProcessing {
		if err := jobs.ValidateTransition(j.Status, jobs.StatusPending); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("job %s is %s, not processing", id, j.Status)
	}
	if j.RetryCount >= j.MaxRetries {
		return nil, jobs.ErrMaxRetriesExceeded
	}
	j.RetryCount++
	j.Status = jobs.StatusPending
	j.Error = &message
	cp := *j
	return &cp, nil
}

func jobMessage(t *testing.T, job *jobs.Job, payload map[string]any) queue.Message {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jobId":   job.ID.String(),
		"jobType": string(job.Type),
		"payload": payload,
	})
	require.NoError(t, err)
	return queue.Message{
		MessageID:     "msg-1",
		Body:          body,
		ReceiptHandle: "receipt-1",
		Attributes: map[string]string{
			queue.AttrJobID:   job.ID.String(),
			queue.AttrJobType: string(job.Type),
		},
	}
}

func pendingJob(jobType jobs.Type) *jobs.Job {
	return &jobs.Job{
		ID:         uuid.New(),
		Type:       jobType,
		EpisodeID:  "ep-1",
		Status:     jobs.StatusPending,
		MaxRetries: jobs.DefaultMaxRetries,
	}
}

func TestProcessorRunsHandlerAndCompletes(t *testing.T) {
	job := pendingJob(jobs.TypeThumbnailGeneration)
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	var gotPayload map[string]any
	proc.Register(jobs.TypeThumbnailGeneration, func(_ context.Context, j *jobs.Job, payload map[string]any) error {
		assert.Equal(t, jobs.StatusProcessing, j.Status)
		gotPayload = payload
		return nil
	})

	msg := jobMessage(t, job, map[string]any{"count": float64(3)})
	require.NoError(t, proc.HandleMessage(context.Background(), msg))

	stored := records.jobs[job.ID]
	assert.Equal(t, jobs.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, map[string]any{"count": float64(3)}, gotPayload)
	assert.Empty(t, transport.deadLettered)
}

func TestProcessorAcksUnknownJob(t *testing.T) {
	records := newFakeRecords()
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	job := pendingJob(jobs.TypeVideoProcessing)
	// job never stored: the record was deleted after enqueue
	require.NoError(t, proc.HandleMessage(context.Background(), jobMessage(t, job, nil)))
	assert.Empty(t, transport.deadLettered)
}

func TestProcessorDeadLettersUnknownType(t *testing.T) {
	job := pendingJob("composition-render")
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	require.NoError(t, proc.HandleMessage(context.Background(), jobMessage(t, job, nil)))

	assert.Equal(t, jobs.StatusFailed, records.jobs[job.ID].Status)
	require.Len(t, transport.deadLettered, 1)
	assert.Contains(t, transport.deadLettered[0].reason, "no handler registered")
}

func TestProcessorDeadLettersMalformedMessage(t *testing.T) {
	records := newFakeRecords()
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	msg := queue.Message{MessageID: "msg-1", Body: []byte("not json"), ReceiptHandle: "receipt-1"}
	require.NoError(t, proc.HandleMessage(context.Background(), msg))

	require.Len(t, transport.deadLettered, 1)
	assert.Equal(t, []byte("not json"), transport.deadLettered[0].body)
}

func TestProcessorRetriesWithBudget(t *testing.T) {
	job := pendingJob(jobs.TypeVideoProcessing)
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	handlerErr := errors.New("transcode crashed")
	proc.Register(jobs.TypeVideoProcessing, func(context.Context, *jobs.Job, map[string]any) error {
		return handlerErr
	})

	msg := jobMessage(t, job, nil)
	err := proc.HandleMessage(context.Background(), msg)
	require.ErrorIs(t, err, handlerErr)

	stored := records.jobs[job.ID]
	assert.Equal(t, jobs.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	// the delivery was released with a backoff, not acknowledged
	assert.Equal(t, []string{"receipt-1"}, transport.released)
	assert.Equal(t, []time.Duration{retryBackoffBase}, transport.releaseDelays)
	assert.Empty(t, transport.deadLettered)
}

func TestProcessorRetryBackoffGrows(t *testing.T) {
	job := pendingJob(jobs.TypeVideoProcessing)
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	handlerErr := errors.New("transcode crashed")
	proc.Register(jobs.TypeVideoProcessing, func(context.Context, *jobs.Job, map[string]any) error {
		return handlerErr
	})

	msg := jobMessage(t, job, nil)
	require.ErrorIs(t, proc.HandleMessage(context.Background(), msg), handlerErr)
	require.ErrorIs(t, proc.HandleMessage(context.Background(), msg), handlerErr)

	assert.Equal(t, 2, records.jobs[job.ID].RetryCount)
	assert.Equal(t, []time.Duration{
		retryBackoffBase,
		2 * retryBackoffBase,
	}, transport.releaseDelays)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, retryBackoffBase},
		{1, retryBackoffBase},
		{2, 2 * retryBackoffBase},
		{3, 4 * retryBackoffBase},
		{10, retryBackoffMax},
		{100, retryBackoffMax},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}

func TestProcessorKeepsCancelledJobCancelled(t *testing.T) {
	job := pendingJob(jobs.TypeVideoProcessing)
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	proc.Register(jobs.TypeVideoProcessing, func(context.Context, *jobs.Job, map[string]any) error {
		// an operator cancel lands while the handler is running
		records.jobs[job.ID].Status = jobs.StatusCancelled
		return errors.New("transcode crashed")
	})

	require.NoError(t, proc.HandleMessage(context.Background(), jobMessage(t, job, nil)))

	stored := records.jobs[job.ID]
	assert.Equal(t, jobs.StatusCancelled, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, transport.released)
	assert.Empty(t, transport.deadLettered)
}

func TestProcessorDeadLettersWhenExhausted(t *testing.T) {
	job := pendingJob(jobs.TypeVideoProcessing)
	job.RetryCount = job.MaxRetries
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)

	proc.Register(jobs.TypeVideoProcessing, func(context.Context, *jobs.Job, map[string]any) error {
		return errors.New("transcode crashed")
	})

	require.NoError(t, proc.HandleMessage(context.Background(), jobMessage(t, job, nil)))

	stored := records.jobs[job.ID]
	assert.Equal(t, jobs.StatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "retries exhausted")

	require.Len(t, transport.deadLettered, 1)
	assert.Empty(t, transport.released)
}

func TestProcessorSkipsFinishedJobs(t *testing.T) {
	for _, status := range []jobs.Status{jobs.StatusCompleted, jobs.StatusCancelled} {
		job := pendingJob(jobs.TypeDataImport)
		job.Status = status
		records := newFakeRecords(job)
		transport := &stubTransport{}
		proc := NewProcessor(records, transport)

		called := false
		proc.Register(jobs.TypeDataImport, func(context.Context, *jobs.Job, map[string]any) error {
			called = true
			return nil
		})

		require.NoError(t, proc.HandleMessage(context.Background(), jobMessage(t, job, nil)))
		assert.False(t, called, "handler must not run for %s job", status)
		assert.Equal(t, status, records.jobs[job.ID].Status)
	}
}

func TestProcessorHandlerTimeout(t *testing.T) {
	job := pendingJob(jobs.TypeBulkExport)
	records := newFakeRecords(job)
	transport := &stubTransport{}
	proc := NewProcessor(records, transport)
	proc.timeout = 10 * time.Millisecond

	proc.Register(jobs.TypeBulkExport, func(ctx context.Context, _ *jobs.Job, _ map[string]any) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := proc.HandleMessage(context.Background(), jobMessage(t, job, nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, records.jobs[job.ID].RetryCount)
}
