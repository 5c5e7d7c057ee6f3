package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/objectstore"
	"github.com/primepisodes/media-engine/pkg/ffmpeg"
)

type memObjects struct {
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) Put(_ context.Context, key string, body []byte, _ string) error {
	o.objects[key] = body
	return nil
}

func (o *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := o.objects[key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return body, nil
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	delete(o.objects, key)
	return nil
}

func (o *memObjects) Head(_ context.Context, key string) (*objectstore.ObjectInfo, error) {
	body, ok := o.objects[key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return &objectstore.ObjectInfo{Key: key, SizeBytes: int64(len(body))}, nil
}

func (o *memObjects) List(_ context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	var out []objectstore.ObjectInfo
	for key, body := range o.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, objectstore.ObjectInfo{Key: key, SizeBytes: int64(len(body))})
		}
	}
	return out, nil
}

func (o *memObjects) Presign(key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (o *memObjects) URL(key string) string {
	return "https://cdn.example.com/" + key
}

type stubMedia struct {
	meta       *ffmpeg.Metadata
	thumbCount int
}

func (m *stubMedia) ExtractMetadata(context.Context, ffmpeg.Source) (*ffmpeg.Metadata, error) {
	return m.meta, nil
}

func (m *stubMedia) GenerateThumbnails(_ context.Context, _ ffmpeg.Source, count int, _ ffmpeg.ThumbnailOptions) ([][]byte, error) {
	m.thumbCount = count
	thumbs := make([][]byte, count)
	for i := range thumbs {
		thumbs[i] = []byte(fmt.Sprintf("jpeg-%d", i))
	}
	return thumbs, nil
}

type progressLog struct {
	values []int
}

func (p *progressLog) Progress(_ context.Context, _ uuid.UUID, progress int) error {
	p.values = append(p.values, progress)
	return nil
}

func handlerJob(jobType jobs.Type) *jobs.Job {
	return &jobs.Job{ID: uuid.New(), Type: jobType, EpisodeID: "ep-1", Status: jobs.StatusProcessing}
}

func TestThumbnailGenerationStoresFrames(t *testing.T) {
	objects := newMemObjects()
	objects.objects["episodes/ep-1/source.mp4"] = []byte("clip")
	media := &stubMedia{}
	progress := &progressLog{}
	h := NewHandlers(objects, media, progress)

	job := handlerJob(jobs.TypeThumbnailGeneration)
	err := h.ThumbnailGeneration(context.Background(), job, map[string]any{
		"fileKey": "episodes/ep-1/source.mp4",
		"count":   float64(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, media.thumbCount)
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("episodes/ep-1/thumbnails/thumbnail_%d.jpg", i)
		assert.Contains(t, objects.objects, key)
	}
	assert.Equal(t, []int{25, 60}, progress.values)
}

func TestThumbnailGenerationRejectsBadPayload(t *testing.T) {
	h := NewHandlers(newMemObjects(), &stubMedia{}, &progressLog{})
	job := handlerJob(jobs.TypeThumbnailGeneration)

	err := h.ThumbnailGeneration(context.Background(), job, map[string]any{})
	require.ErrorContains(t, err, "fileKey")

	err = h.ThumbnailGeneration(context.Background(), job, map[string]any{
		"fileKey": "episodes/ep-1/source.mp4",
		"count":   float64(50),
	})
	require.ErrorContains(t, err, "invalid thumbnail count")
}

func TestVideoProcessingWritesMetadataArtifact(t *testing.T) {
	objects := newMemObjects()
	objects.objects["episodes/ep-1/source.mp4"] = []byte("clip-bytes")
	media := &stubMedia{meta: &ffmpeg.Metadata{
		DurationSeconds: 12.5,
		BitRate:         1_205_000,
		Video:           &ffmpeg.VideoInfo{Width: 1920, Height: 1080, FrameRate: 25},
	}}
	h := NewHandlers(objects, media, &progressLog{})

	job := handlerJob(jobs.TypeVideoProcessing)
	err := h.VideoProcessing(context.Background(), job, map[string]any{
		"fileKey": "episodes/ep-1/source.mp4",
	})
	require.NoError(t, err)

	raw, ok := objects.objects["episodes/ep-1/source.mp4.metadata.json"]
	require.True(t, ok)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 12.5, doc["durationSeconds"])
	assert.Equal(t, "1920x1080", doc["resolution"])
	assert.Equal(t, float64(len("clip-bytes")), doc["sizeBytes"])
}

func TestBulkUploadVerifiesObjects(t *testing.T) {
	objects := newMemObjects()
	objects.objects["episodes/ep-1/a.mp4"] = []byte("a")
	objects.objects["episodes/ep-1/b.mp4"] = []byte("b")
	progress := &progressLog{}
	h := NewHandlers(objects, &stubMedia{}, progress)

	job := handlerJob(jobs.TypeBulkUpload)
	err := h.BulkUpload(context.Background(), job, map[string]any{
		"fileKeys": []any{"episodes/ep-1/a.mp4", "episodes/ep-1/b.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, progress.values)

	// a missing object fails the batch
	err = h.BulkUpload(context.Background(), job, map[string]any{
		"fileKeys": []any{"episodes/ep-1/missing.mp4"},
	})
	require.ErrorContains(t, err, "missing")
}

func TestBulkExportWritesManifest(t *testing.T) {
	objects := newMemObjects()
	objects.objects["episodes/ep-1/a.mp4"] = []byte("aaaa")
	h := NewHandlers(objects, &stubMedia{}, &progressLog{})

	job := handlerJob(jobs.TypeBulkExport)
	require.NoError(t, h.BulkExport(context.Background(), job, map[string]any{}))

	raw, ok := objects.objects[fmt.Sprintf("exports/%s/manifest.json", job.ID)]
	require.True(t, ok)

	var doc struct {
		Prefix  string           `json:"prefix"`
		Objects []map[string]any `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "episodes/ep-1/", doc.Prefix)
	require.Len(t, doc.Objects, 1)
	assert.Equal(t, "episodes/ep-1/a.mp4", doc.Objects[0]["key"])
}

func TestDataImportValidatesDocument(t *testing.T) {
	objects := newMemObjects()
	objects.objects["imports/records.json"] = []byte(`[{"title":"Pilot"},{"title":"Finale"}]`)
	objects.objects["imports/bad.json"] = []byte(`{"not":"an array"}`)
	h := NewHandlers(objects, &stubMedia{}, &progressLog{})

	job := handlerJob(jobs.TypeDataImport)
	require.NoError(t, h.DataImport(context.Background(), job, map[string]any{
		"fileKey": "imports/records.json",
	}))

	err := h.DataImport(context.Background(), job, map[string]any{
		"fileKey": "imports/bad.json",
	})
	require.ErrorContains(t, err, "JSON record array")
}
