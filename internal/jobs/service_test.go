package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with the same SQL-level guards as the real
// one (retry budget, cancel status set, progress monotonicity).
type fakeStore struct {
	jobs map[uuid.UUID]*Job
	// outbox rows staged by CreateJob / RetryJob
	outbox []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]*Job{}}
}

func (s *fakeStore) CreateJob(_ context.Context, job *Job) error {
	cp := *job
	s.jobs[job.ID] = &cp
	s.outbox = append(s.outbox, job.ID)
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) ListJobs(_ context.Context, filter Filter) ([]*Job, int, error) {
	var out []*Job
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.EpisodeID != "" && j.EpisodeID != filter.EpisodeID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *fakeStore) MarkProcessing(_ context.Context, id uuid.UUID) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	j.Status = StatusProcessing
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) CompleteJob(_ context.Context, id uuid.UUID) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	j.Status = StatusCompleted
	j.Progress = 100
	j.CompletedAt = &now
	cp := *j
	return &cp, nil
}

func (s *fakeStore) FailJob(_ context.Context, id uuid.UUID, message string) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	j.Status = StatusFailed
	j.Error = &message
	j.CompletedAt = &now
	cp := *j
	return &cp, nil
}

func (s *fakeStore) BumpRetry(_ context.Context, id uuid.UUID, message string) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusProcessing {
		if err := ValidateTransition(j.Status, StatusPending); err != nil {
			return nil, err
		}
		return nil, errors.New("job is not processing")
	}
	if j.RetryCount >= j.MaxRetries {
		return nil, ErrMaxRetriesExceeded
	}
	j.RetryCount++
	j.Status = StatusPending
	j.Error = &message
	cp := *j
	return &cp, nil
}

func (s *fakeStore) RetryJob(_ context.Context, id uuid.UUID) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusFailed || j.RetryCount >= j.MaxRetries {
		return nil, ErrRetryNotAllowed
	}
	j.RetryCount++
	j.Status = StatusPending
	j.Error = nil
	j.Progress = 0
	s.outbox = append(s.outbox, id)
	cp := *j
	return &cp, nil
}

func (s *fakeStore) CancelJob(_ context.Context, id uuid.UUID) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusPending && j.Status != StatusProcessing {
		return nil, ErrCancelNotAllowed
	}
	j.Status = StatusCancelled
	cp := *j
	return &cp, nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status == StatusProcessing && progress > j.Progress {
		j.Progress = progress
	}
	return nil
}

func (s *fakeStore) SetQueueMessageID(_ context.Context, id uuid.UUID, messageID string) error {
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.QueueMessageID = &messageID
	return nil
}

func newTestService(store *fakeStore) *Service {
	svc := NewService(store)
	svc.clock = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateDefaults(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, err := svc.Create(context.Background(), CreateParams{
		Type:      TypeThumbnailGeneration,
		EpisodeID: "ep-1",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	// an outbox row is staged together with the record
	assert.Equal(t, []uuid.UUID{job.ID}, store.outbox)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Create(context.Background(), CreateParams{EpisodeID: "ep-1"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "jobType", verr.Field)

	_, err = svc.Create(context.Background(), CreateParams{Type: "composition-render", EpisodeID: "ep-1"})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Create(context.Background(), CreateParams{Type: TypeBulkUpload})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "episodeId", verr.Field)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, err := svc.Create(context.Background(), CreateParams{Type: TypeVideoProcessing, EpisodeID: "ep-1"})
	require.NoError(t, err)

	// pending job: rejected, retryCount untouched
	_, err = svc.Retry(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrRetryNotAllowed)
	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, 0, got.RetryCount)

	// fail it, then retry succeeds
	_, err = store.FailJob(context.Background(), job.ID, "boom")
	require.NoError(t, err)

	updated, err := svc.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, 0, updated.Progress)
	assert.Nil(t, updated.Error)
}

func TestRetryBudgetExhausted(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, err := svc.Create(context.Background(), CreateParams{Type: TypeVideoProcessing, EpisodeID: "ep-1", MaxRetries: 1})
	require.NoError(t, err)

	_, err = store.FailJob(context.Background(), job.ID, "boom")
	require.NoError(t, err)
	_, err = svc.Retry(context.Background(), job.ID)
	require.NoError(t, err)

	_, err = store.FailJob(context.Background(), job.ID, "boom again")
	require.NoError(t, err)
	_, err = svc.Retry(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.LessOrEqual(t, got.RetryCount, got.MaxRetries)
}

func TestCancelStates(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, err := svc.Create(context.Background(), CreateParams{Type: TypeBulkExport, EpisodeID: "ep-2"})
	require.NoError(t, err)

	updated, err := svc.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)

	// cancelled is terminal: a second cancel is rejected
	_, err = svc.Cancel(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrCancelNotAllowed)

	// completed jobs cannot be cancelled either
	job2, _ := svc.Create(context.Background(), CreateParams{Type: TypeBulkExport, EpisodeID: "ep-2"})
	_, err = store.MarkProcessing(context.Background(), job2.ID)
	require.NoError(t, err)
	_, err = store.CompleteJob(context.Background(), job2.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), job2.ID)
	require.ErrorIs(t, err, ErrCancelNotAllowed)
}

func TestCancelProcessing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, _ := svc.Create(context.Background(), CreateParams{Type: TypeDataImport, EpisodeID: "ep-3"})
	_, err := store.MarkProcessing(context.Background(), job.ID)
	require.NoError(t, err)

	updated, err := svc.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
}

func TestProgressValidation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	job, _ := svc.Create(context.Background(), CreateParams{Type: TypeDataImport, EpisodeID: "ep-3"})
	_, err := store.MarkProcessing(context.Background(), job.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Progress(context.Background(), job.ID, 40))
	require.NoError(t, svc.Progress(context.Background(), job.ID, 20)) // ignored, monotonic

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, 40, got.Progress)

	var verr *ValidationError
	require.ErrorAs(t, svc.Progress(context.Background(), job.ID, 101), &verr)
	require.ErrorAs(t, svc.Progress(context.Background(), job.ID, -1), &verr)
}

func TestGetUnknownJob(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	var verr *ValidationError
	_, err = svc.Get(context.Background(), uuid.Nil)
	require.ErrorAs(t, err, &verr)
}
