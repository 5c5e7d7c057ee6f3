// package scene_api provides the scene-library API handlers.
package scene_api

import (
	"time"

	"github.com/primepisodes/media-engine/internal/ingest"
)

// SceneResponse is the wire shape of a scene record.
type SceneResponse struct {
	ID              string     `json:"id"`
	ShowID          string     `json:"showId"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Tags            []string   `json:"tags"`
	Characters      []string   `json:"characters"`
	RawURL          string     `json:"rawUrl"`
	ThumbnailURL    *string    `json:"thumbnailUrl,omitempty"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	Resolution      *string    `json:"resolution,omitempty"`
	FileSizeBytes   *int64     `json:"fileSizeBytes,omitempty"`
	Status          string     `json:"processingStatus"`
	Error           *string    `json:"processingError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func sceneView(s *ingest.Scene) SceneResponse {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	characters := s.Characters
	if characters == nil {
		characters = []string{}
	}
	return SceneResponse{
		ID:              s.ID.String(),
		ShowID:          s.ShowID,
		Title:           s.Title,
		Description:     s.Description,
		Tags:            tags,
		Characters:      characters,
		RawURL:          s.RawURL,
		ThumbnailURL:    s.ThumbnailURL,
		DurationSeconds: s.DurationSeconds,
		Resolution:      s.Resolution,
		FileSizeBytes:   s.FileSizeBytes,
		Status:          string(s.Status),
		Error:           s.Error,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func sceneViews(list []*ingest.Scene) []SceneResponse {
	out := make([]SceneResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sceneView(s))
	}
	return out
}
