package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/primepisodes/media-engine/internal/objectstore"
	"github.com/primepisodes/media-engine/pkg/ffmpeg"
)

// MediaProcessor is the slice of the ffmpeg wrapper the pipeline drives.
type MediaProcessor interface {
	ExtractMetadata(ctx context.Context, src ffmpeg.Source) (*ffmpeg.Metadata, error)
	GenerateThumbnail(ctx context.Context, src ffmpeg.Source, opts ffmpeg.ThumbnailOptions) ([]byte, error)
}

const (
	thumbnailWidth = 320
	// Thumbnails come from 20% into the clip, capped at 3 seconds, so short
	// clips never seek past their end.
	maxThumbnailSeek  = 3.0
	thumbnailFraction = 0.2

	defaultIngestConcurrency = 4
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
	".mkv":  true,
}

// ValidationError rejects an upload or update before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// UploadParams describe a clip upload into a show's scene library.
type UploadParams struct {
	ShowID      string
	Title       string
	Description *string
	Tags        []string
	Characters  []string
	FileName    string
	ContentType string
	Data        []byte
}

// Library runs the scene ingestion pipeline. Uploads store the raw clip and
// record synchronously; metadata and thumbnail extraction happen on a bounded
// background group, so the upload response never waits on ffmpeg.
type Library struct {
	scenes  SceneStore
	objects objectstore.Store
	media   MediaProcessor
	group   *errgroup.Group
	clock   func() time.Time
	idGen   func() uuid.UUID
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithIngestConcurrency bounds simultaneous extraction runs.
func WithIngestConcurrency(n int) LibraryOption {
	return func(l *Library) {
		if n > 0 {
			l.group.SetLimit(n)
		}
	}
}

// NewLibrary creates a scene library over the given stores.
func NewLibrary(scenes SceneStore, objects objectstore.Store, media MediaProcessor, opts ...LibraryOption) *Library {
	l := &Library{
		scenes:  scenes,
		objects: objects,
		media:   media,
		group:   &errgroup.Group{},
		clock:   time.Now,
		idGen:   uuid.New,
	}
	l.group.SetLimit(defaultIngestConcurrency)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until every queued extraction has finished. Call on shutdown.
func (l *Library) Wait() {
	_ = l.group.Wait()
}

// clipKey and thumbnailKey define the object layout per scene.
func clipKey(showID string, sceneID uuid.UUID, ext string) string {
	return fmt.Sprintf("shows/%s/scene-library/%s/clip%s", showID, sceneID, ext)
}

func thumbnailKey(showID string, sceneID uuid.UUID) string {
	return fmt.Sprintf("shows/%s/scene-library/%s/thumbnail.jpg", showID, sceneID)
}

// Upload stores the clip and its record, then queues extraction. The returned
// scene is in processing status; poll Get until it is ready or failed.
func (l *Library) Upload(ctx context.Context, params UploadParams) (*Scene, error) {
	if params.ShowID == "" {
		return nil, &ValidationError{Field: "showId"}
	}
	if params.Title == "" {
		return nil, &ValidationError{Field: "title"}
	}
	if len(params.Data) == 0 {
		return nil, &ValidationError{Field: "file"}
	}
	ext := strings.ToLower(filepath.Ext(params.FileName))
	if !allowedExtensions[ext] {
		return nil, &ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported format %q", ext)}
	}

	id := l.idGen()
	rawKey := clipKey(params.ShowID, id, ext)

	if err := l.objects.Put(ctx, rawKey, params.Data, params.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store clip: %w", err)
	}

	now := l.clock()
	scene := &Scene{
		ID:          id,
		ShowID:      params.ShowID,
		Title:       params.Title,
		Description: params.Description,
		Tags:        params.Tags,
		Characters:  params.Characters,
		RawKey:      rawKey,
		RawURL:      l.objects.URL(rawKey),
		Status:      SceneUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.scenes.CreateScene(ctx, scene); err != nil {
		return nil, err
	}

	if err := l.scenes.SetSceneStatus(ctx, id, SceneProcessing); err != nil {
		return nil, err
	}
	scene.Status = SceneProcessing

	slog.Info("scene uploaded", "scene_id", id, "show_id", params.ShowID,
		"size", humanize.Bytes(uint64(len(params.Data))))

	// The upload request context ends with the response; extraction keeps
	// running on its own.
	bgCtx := context.WithoutCancel(ctx)
	l.group.Go(func() error {
		l.process(bgCtx, scene.ID, scene.ShowID, rawKey)
		return nil
	})

	return scene, nil
}

// process extracts metadata and a thumbnail for an uploaded clip. Failures
// land on the record, never on the group: one bad clip must not block others.
func (l *Library) process(ctx context.Context, sceneID uuid.UUID, showID, rawKey string) {
	if err := l.extract(ctx, sceneID, showID, rawKey); err != nil {
		slog.Error("scene processing failed", "scene_id", sceneID, "error", err)
		if markErr := l.scenes.MarkSceneFailed(ctx, sceneID, err.Error()); markErr != nil {
			slog.Error("failed to mark scene failed", "scene_id", sceneID, "error", markErr)
		}
	}
}

func (l *Library) extract(ctx context.Context, sceneID uuid.UUID, showID, rawKey string) error {
	data, err := l.objects.Get(ctx, rawKey)
	if err != nil {
		return fmt.Errorf("failed to fetch clip: %w", err)
	}
	src := ffmpeg.FromBytes(data)

	meta, err := l.media.ExtractMetadata(ctx, src)
	if err != nil {
		return err
	}

	seek := math.Min(maxThumbnailSeek, meta.DurationSeconds*thumbnailFraction)
	thumb, err := l.media.GenerateThumbnail(ctx, src, ffmpeg.ThumbnailOptions{
		TimestampSeconds: seek,
		Width:            thumbnailWidth,
	})
	if err != nil {
		return err
	}

	thumbKey := thumbnailKey(showID, sceneID)
	if err := l.objects.Put(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}

	media := SceneMedia{
		ThumbnailKey:    thumbKey,
		ThumbnailURL:    l.objects.URL(thumbKey),
		DurationSeconds: math.Round(meta.DurationSeconds*10) / 10,
		Resolution:      meta.Resolution(),
		SizeBytes:       int64(len(data)),
	}
	if _, err := l.scenes.MarkSceneReady(ctx, sceneID, media); err != nil {
		return fmt.Errorf("failed to mark scene ready: %w", err)
	}

	slog.Info("scene ready", "scene_id", sceneID,
		"duration_seconds", media.DurationSeconds,
		"resolution", media.Resolution,
		"size", humanize.Bytes(uint64(media.SizeBytes)))
	return nil
}

// Get fetches one scene.
func (l *Library) Get(ctx context.Context, id uuid.UUID) (*Scene, error) {
	return l.scenes.GetScene(ctx, id)
}

// List returns scenes matching the filter plus the total match count.
func (l *Library) List(ctx context.Context, filter SceneFilter) ([]*Scene, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return l.scenes.ListScenes(ctx, filter)
}

// Update edits the operator-facing fields of a scene.
func (l *Library) Update(ctx context.Context, id uuid.UUID, params UpdateSceneParams) (*Scene, error) {
	if params.Title != nil && *params.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return l.scenes.UpdateSceneDetails(ctx, id, params)
}

// Delete removes the record and its stored objects. Scenes referenced by
// episodes are rejected with *SceneInUseError before anything is touched.
func (l *Library) Delete(ctx context.Context, id uuid.UUID) error {
	scene, err := l.scenes.GetScene(ctx, id)
	if err != nil {
		return err
	}

	if err := l.scenes.DeleteScene(ctx, id); err != nil {
		return err
	}

	// Object cleanup is best effort; an orphaned blob beats a dangling record.
	if err := l.objects.Delete(ctx, scene.RawKey); err != nil {
		slog.Warn("failed to delete clip object", "scene_id", id, "key", scene.RawKey, "error", err)
	}
	if scene.ThumbnailKey != nil {
		if err := l.objects.Delete(ctx, *scene.ThumbnailKey); err != nil {
			slog.Warn("failed to delete thumbnail object", "scene_id", id, "key", *scene.ThumbnailKey, "error", err)
		}
	}

	slog.Info("scene deleted", "scene_id", id, "show_id", scene.ShowID)
	return nil
}

// SignedClipURL issues a time-limited download URL for the raw clip.
func (l *Library) SignedClipURL(scene *Scene, ttl time.Duration) (string, error) {
	return l.objects.Presign(scene.RawKey, ttl)
}
