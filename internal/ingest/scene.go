// Package ingest owns the scene library: reusable clips uploaded per show,
// run through media extraction, and referenced by episode compositions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SceneStatus tracks a clip through the ingestion pipeline.
type SceneStatus string

const (
	SceneUploading  SceneStatus = "uploading"
	SceneProcessing SceneStatus = "processing"
	SceneReady      SceneStatus = "ready"
	SceneFailed     SceneStatus = "failed"
)

// Scene is one clip in a show's scene library.
type Scene struct {
	ID          uuid.UUID
	ShowID      string
	Title       string
	Description *string
	Tags        []string
	Characters  []string
	// RawKey/RawURL locate the uploaded clip in object storage.
	RawKey string
	RawURL string
	// Media fields are populated once extraction succeeds.
	ThumbnailKey    *string
	ThumbnailURL    *string
	DurationSeconds *float64
	Resolution      *string
	FileSizeBytes   *int64
	Status          SceneStatus
	Error           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SceneFilter narrows scene listings.
type SceneFilter struct {
	ShowID string
	Status SceneStatus
	Search string
	Limit  int
	Offset int
}

// UpdateSceneParams are the operator-editable fields. Nil pointers and nil
// slices leave the current value untouched.
type UpdateSceneParams struct {
	Title       *string
	Description *string
	Tags        []string
	Characters  []string
}

// SceneMedia is the extraction result recorded when a scene becomes ready.
type SceneMedia struct {
	ThumbnailKey    string
	ThumbnailURL    string
	DurationSeconds float64
	Resolution      string
	SizeBytes       int64
}

// SceneStore is the persistence contract for scene records.
type SceneStore interface {
	CreateScene(ctx context.Context, scene *Scene) error
	GetScene(ctx context.Context, id uuid.UUID) (*Scene, error)
	ListScenes(ctx context.Context, filter SceneFilter) ([]*Scene, int, error)
	UpdateSceneDetails(ctx context.Context, id uuid.UUID, params UpdateSceneParams) (*Scene, error)
	SetSceneStatus(ctx context.Context, id uuid.UUID, status SceneStatus) error
	// MarkSceneReady records the extraction result and flips the scene to ready.
	MarkSceneReady(ctx context.Context, id uuid.UUID, media SceneMedia) (*Scene, error)
	MarkSceneFailed(ctx context.Context, id uuid.UUID, message string) error
	// DeleteScene removes an unreferenced scene; a referenced one is rejected
	// with *SceneInUseError.
	DeleteScene(ctx context.Context, id uuid.UUID) error
}

// ErrSceneNotFound indicates no scene record exists for the id.
var ErrSceneNotFound = errors.New("scene not found")

// SceneInUseError rejects deleting a scene still referenced by episodes.
type SceneInUseError struct {
	Count int
}

// Error implements error.
func (e *SceneInUseError) Error() string {
	return fmt.Sprintf("scene is used by %d episode(s)", e.Count)
}
