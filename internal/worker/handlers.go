package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/objectstore"
	"github.com/primepisodes/media-engine/pkg/ffmpeg"
)

// MediaProcessor is the slice of the ffmpeg wrapper the handlers drive.
type MediaProcessor interface {
	ExtractMetadata(ctx context.Context, src ffmpeg.Source) (*ffmpeg.Metadata, error)
	GenerateThumbnails(ctx context.Context, src ffmpeg.Source, count int, opts ffmpeg.ThumbnailOptions) ([][]byte, error)
}

// ProgressReporter records completion percentage on the job record.
type ProgressReporter interface {
	Progress(ctx context.Context, id uuid.UUID, progress int) error
}

// Handlers implements the built-in job types against object storage and the
// media processor.
type Handlers struct {
	objects  objectstore.Store
	media    MediaProcessor
	progress ProgressReporter
}

// NewHandlers creates the built-in job handlers.
func NewHandlers(objects objectstore.Store, media MediaProcessor, progress ProgressReporter) *Handlers {
	return &Handlers{objects: objects, media: media, progress: progress}
}

// RegisterAll installs every built-in handler on the processor.
func (h *Handlers) RegisterAll(p *Processor) {
	p.Register(jobs.TypeThumbnailGeneration, h.ThumbnailGeneration)
	p.Register(jobs.TypeVideoProcessing, h.VideoProcessing)
	p.Register(jobs.TypeBulkUpload, h.BulkUpload)
	p.Register(jobs.TypeBulkExport, h.BulkExport)
	p.Register(jobs.TypeDataImport, h.DataImport)
}

// report swallows progress errors: a stale progress write must never fail
// the job itself.
func (h *Handlers) report(ctx context.Context, jobID uuid.UUID, progress int) {
	if err := h.progress.Progress(ctx, jobID, progress); err != nil {
		slog.Warn("failed to report progress", "job_id", jobID, "progress", progress, "error", err)
	}
}

// ThumbnailGeneration extracts evenly spaced thumbnails from the payload's
// fileKey and stores them under the episode's thumbnail prefix. Re-running
// overwrites the same keys, so redelivery is safe.
func (h *Handlers) ThumbnailGeneration(ctx context.Context, job *jobs.Job, payload map[string]any) error {
	fileKey, err := payloadString(payload, "fileKey")
	if err != nil {
		return err
	}
	count := payloadInt(payload, "count", 1)
	if count < 1 || count > 20 {
		return fmt.Errorf("invalid thumbnail count %d", count)
	}

	data, err := h.objects.Get(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", fileKey, err)
	}
	h.report(ctx, job.ID, 25)

	thumbs, err := h.media.GenerateThumbnails(ctx, ffmpeg.FromBytes(data), count, ffmpeg.ThumbnailOptions{})
	if err != nil {
		return err
	}
	h.report(ctx, job.ID, 60)

	for i, thumb := range thumbs {
		key := fmt.Sprintf("episodes/%s/thumbnails/thumbnail_%d.jpg", job.EpisodeID, i+1)
		if err := h.objects.Put(ctx, key, thumb, "image/jpeg"); err != nil {
			return fmt.Errorf("failed to store thumbnail %s: %w", key, err)
		}
	}

	slog.Info("thumbnails generated", "job_id", job.ID, "episode_id", job.EpisodeID, "count", len(thumbs))
	return nil
}

// VideoProcessing probes the payload's fileKey and stores the extracted
// metadata as a JSON artifact next to the source object.
func (h *Handlers) VideoProcessing(ctx context.Context, job *jobs.Job, payload map[string]any) error {
	fileKey, err := payloadString(payload, "fileKey")
	if err != nil {
		return err
	}

	data, err := h.objects.Get(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", fileKey, err)
	}
	h.report(ctx, job.ID, 30)

	meta, err := h.media.ExtractMetadata(ctx, ffmpeg.FromBytes(data))
	if err != nil {
		return err
	}
	h.report(ctx, job.ID, 70)

	doc, err := json.Marshal(map[string]any{
		"durationSeconds": meta.DurationSeconds,
		"sizeBytes":       int64(len(data)),
		"bitRate":         meta.BitRate,
		"resolution":      meta.Resolution(),
	})
	if err != nil {
		return err
	}

	metaKey := fileKey + ".metadata.json"
	if err := h.objects.Put(ctx, metaKey, doc, "application/json"); err != nil {
		return fmt.Errorf("failed to store metadata %s: %w", metaKey, err)
	}

	slog.Info("video processed", "job_id", job.ID, "file_key", fileKey,
		"duration_seconds", meta.DurationSeconds, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// BulkUpload verifies every listed object landed in storage and probes each
// one, recording progress per file.
func (h *Handlers) BulkUpload(ctx context.Context, job *jobs.Job, payload map[string]any) error {
	keys, err := payloadStrings(payload, "fileKeys")
	if err != nil {
		return err
	}

	for i, key := range keys {
		info, err := h.objects.Head(ctx, key)
		if err != nil {
			return fmt.Errorf("uploaded object %s missing: %w", key, err)
		}
		if info.SizeBytes == 0 {
			return fmt.Errorf("uploaded object %s is empty", key)
		}
		h.report(ctx, job.ID, (i+1)*100/len(keys))
	}

	slog.Info("bulk upload verified", "job_id", job.ID, "episode_id", job.EpisodeID, "files", len(keys))
	return nil
}

// BulkExport writes a manifest of every object under the episode prefix so
// an external tool can mirror the assets.
func (h *Handlers) BulkExport(ctx context.Context, job *jobs.Job, payload map[string]any) error {
	prefix, err := payloadString(payload, "prefix")
	if err != nil {
		prefix = fmt.Sprintf("episodes/%s/", job.EpisodeID)
	}

	objects, err := h.objects.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	h.report(ctx, job.ID, 50)

	entries := make([]map[string]any, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, map[string]any{
			"key":       obj.Key,
			"sizeBytes": obj.SizeBytes,
			"url":       h.objects.URL(obj.Key),
		})
	}
	doc, err := json.Marshal(map[string]any{"prefix": prefix, "objects": entries})
	if err != nil {
		return err
	}

	manifestKey := fmt.Sprintf("exports/%s/manifest.json", job.ID)
	if err := h.objects.Put(ctx, manifestKey, doc, "application/json"); err != nil {
		return fmt.Errorf("failed to store manifest %s: %w", manifestKey, err)
	}

	slog.Info("bulk export manifest written", "job_id", job.ID, "prefix", prefix, "objects", len(entries))
	return nil
}

// DataImport validates that the payload's fileKey holds a parseable JSON
// array of records. The downstream CRUD layer consumes the validated
// document; this job only gates it.
func (h *Handlers) DataImport(ctx context.Context, job *jobs.Job, payload map[string]any) error {
	fileKey, err := payloadString(payload, "fileKey")
	if err != nil {
		return err
	}

	data, err := h.objects.Get(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", fileKey, err)
	}
	h.report(ctx, job.ID, 50)

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("import document %s is not a JSON record array: %w", fileKey, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("import document %s holds no records", fileKey)
	}

	slog.Info("import document validated", "job_id", job.ID, "file_key", fileKey, "records", len(records))
	return nil
}

func payloadString(payload map[string]any, key string) (string, error) {
	v, ok := payload[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("payload is missing %q", key)
	}
	return v, nil
}

func payloadInt(payload map[string]any, key string, def int) int {
	// JSON numbers decode as float64.
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return def
}

func payloadStrings(payload map[string]any, key string) ([]string, error) {
	raw, ok := payload[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("payload is missing %q", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("payload %q holds a non-string entry", key)
		}
		out = append(out, s)
	}
	return out, nil
}
