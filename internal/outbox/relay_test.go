package outbox

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

type fakeStore struct {
	pending    []Record
	sentIDs    []int64
	messageIDs map[uuid.UUID]string
	markErr    error
}

func newRelayStore(records ...Record) *fakeStore {
	return &fakeStore{pending: records, messageIDs: map[uuid.UUID]string{}}
}

func (s *fakeStore) PendingOutbox(_ context.Context, limit int) ([]Record, error) {
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	return s.pending[:limit], nil
}

func (s *fakeStore) MarkOutboxSent(_ context.Context, id int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.sentIDs = append(s.sentIDs, id)
	for i, rec := range s.pending {
		if rec.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) SetQueueMessageID(_ context.Context, jobID uuid.UUID, messageID string) error {
	s.messageIDs[jobID] = messageID
	return nil
}

type sentMessage struct {
	body  []byte
	attrs map[string]string
}

type fakeTransport struct {
	sent    []sentMessage
	failAt  int // fail the nth Enqueue (1-based), 0 = never
	nextErr error
}

func (t *fakeTransport) Enqueue(_ context.Context, body []byte, attrs map[string]string) (string, error) {
	if t.failAt > 0 && len(t.sent)+1 == t.failAt {
		return "", t.nextErr
	}
	t.sent = append(t.sent, sentMessage{body: body, attrs: attrs})
	return fmt.Sprintf("msg-%d", len(t.sent)), nil
}

func (t *fakeTransport) Receive(context.Context, int, time.Duration) ([]queue.Message, error) {
	return nil, nil
}
func (t *fakeTransport) Delete(context.Context, string) error                         { return nil }
func (t *fakeTransport) ChangeVisibility(context.Context, string, time.Duration) error { return nil }
func (t *fakeTransport) SendToDeadLetter(context.Context, []byte, string) error        { return nil }
func (t *fakeTransport) Purge(context.Context) error                                   { return nil }

func TestFlushDeliversPendingRows(t *testing.T) {
	jobID := uuid.New()
	store := newRelayStore(Record{
		ID:      1,
		JobID:   jobID,
		JobType: jobs.TypeThumbnailGeneration,
		Payload: map[string]any{"count": float64(3)},
	})
	transport := &fakeTransport{}

	relay := NewRelay(store, transport)
	relay.clock = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, jobID.String(), msg.attrs[queue.AttrJobID])
	assert.Equal(t, "thumbnail-generation", msg.attrs[queue.AttrJobType])

	var env envelope
	require.NoError(t, json.Unmarshal(msg.body, &env))
	assert.Equal(t, jobID.String(), env.JobID)
	assert.Equal(t, "thumbnail-generation", env.JobType)
	assert.Equal(t, map[string]any{"count": float64(3)}, env.Payload)
	assert.Equal(t, "2026-08-30T12:00:00Z", env.Timestamp)

	assert.Equal(t, []int64{1}, store.sentIDs)
	assert.Equal(t, "msg-1", store.messageIDs[jobID])
}

func TestFlushStopsOnEnqueueFailure(t *testing.T) {
	store := newRelayStore(
		Record{ID: 1, JobID: uuid.New(), JobType: jobs.TypeVideoProcessing},
		Record{ID: 2, JobID: uuid.New(), JobType: jobs.TypeVideoProcessing},
		Record{ID: 3, JobID: uuid.New(), JobType: jobs.TypeVideoProcessing},
	)
	transport := &fakeTransport{failAt: 2, nextErr: errors.New("broker unavailable")}

	relay := NewRelay(store, transport)

	sent, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sent)

	// rows 2 and 3 stay pending for the next pass
	assert.Equal(t, []int64{1}, store.sentIDs)
	require.Len(t, store.pending, 2)
	assert.Equal(t, int64(2), store.pending[0].ID)
}

func TestFlushRespectsBatchSize(t *testing.T) {
	var records []Record
	for i := range 5 {
		records = append(records, Record{ID: int64(i + 1), JobID: uuid.New(), JobType: jobs.TypeBulkExport})
	}
	store := newRelayStore(records...)
	transport := &fakeTransport{}

	relay := NewRelay(store, transport, WithBatchSize(2))

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, store.pending, 3)
}

func TestFlushToleratesMarkSentFailure(t *testing.T) {
	store := newRelayStore(Record{ID: 1, JobID: uuid.New(), JobType: jobs.TypeDataImport})
	store.markErr = errors.New("connection reset")
	transport := &fakeTransport{}

	relay := NewRelay(store, transport)

	// delivery counts even though the sent-mark failed; the duplicate on the
	// next pass is tolerated downstream
	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, transport.sent, 1)
}
