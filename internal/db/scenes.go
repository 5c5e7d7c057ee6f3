package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/primepisodes/media-engine/internal/ingest"
)

// SceneStore persists scene-library records.
type SceneStore struct {
	db *DatabaseConnection
}

func NewSceneStore(db *DatabaseConnection) *SceneStore {
	return &SceneStore{db: db}
}

const sceneColumns = `id, show_id, title, description, tags, characters,
	raw_key, raw_url, thumbnail_key, thumbnail_url, duration_seconds,
	resolution, file_size_bytes, processing_status, processing_error,
	created_at, updated_at`

func scanScene(row pgx.Row) (*ingest.Scene, error) {
	var sc ingest.Scene
	err := row.Scan(
		&sc.ID, &sc.ShowID, &sc.Title, &sc.Description, &sc.Tags, &sc.Characters,
		&sc.RawKey, &sc.RawURL, &sc.ThumbnailKey, &sc.ThumbnailURL, &sc.DurationSeconds,
		&sc.Resolution, &sc.FileSizeBytes, &sc.Status, &sc.Error,
		&sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingest.ErrSceneNotFound
		}
		return nil, fmt.Errorf("failed to scan scene: %w", err)
	}
	return &sc, nil
}

func (s *SceneStore) CreateScene(ctx context.Context, scene *ingest.Scene) error {
	tags := scene.Tags
	if tags == nil {
		tags = []string{}
	}
	characters := scene.Characters
	if characters == nil {
		characters = []string{}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO scenes (id, show_id, title, description, tags, characters,
			raw_key, raw_url, processing_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		scene.ID, scene.ShowID, scene.Title, scene.Description, tags, characters,
		scene.RawKey, scene.RawURL, scene.Status, scene.CreatedAt, scene.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scene: %w", err)
	}
	return nil
}

func (s *SceneStore) GetScene(ctx context.Context, id uuid.UUID) (*ingest.Scene, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = $1`, id)
	return scanScene(row)
}

// ListScenes returns matching scenes newest-first plus the total match count.
// Search matches title and tags, case-insensitively.
func (s *SceneStore) ListScenes(ctx context.Context, filter ingest.SceneFilter) ([]*ingest.Scene, int, error) {
	var (
		where []string
		args  []any
	)

	if filter.ShowID != "" {
		args = append(args, filter.ShowID)
		where = append(where, "show_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "processing_status = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR EXISTS (SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE $"+n+"))")
	}

	query := `SELECT ` + sceneColumns + `, count(*) OVER() FROM scenes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	var (
		out   []*ingest.Scene
		total int
	)
	for rows.Next() {
		var sc ingest.Scene
		err := rows.Scan(
			&sc.ID, &sc.ShowID, &sc.Title, &sc.Description, &sc.Tags, &sc.Characters,
			&sc.RawKey, &sc.RawURL, &sc.ThumbnailKey, &sc.ThumbnailURL, &sc.DurationSeconds,
			&sc.Resolution, &sc.FileSizeBytes, &sc.Status, &sc.Error,
			&sc.CreatedAt, &sc.UpdatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan scene: %w", err)
		}
		out = append(out, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (s *SceneStore) UpdateSceneDetails(ctx context.Context, id uuid.UUID, params ingest.UpdateSceneParams) (*ingest.Scene, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE scenes
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			tags = COALESCE($4, tags),
			characters = COALESCE($5, characters),
			updated_at = now()
		WHERE id = $1
		RETURNING `+sceneColumns,
		id, params.Title, params.Description, params.Tags, params.Characters,
	)
	return scanScene(row)
}

func (s *SceneStore) SetSceneStatus(ctx context.Context, id uuid.UUID, status ingest.SceneStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scenes
		SET processing_status = $2, updated_at = now()
		WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set scene status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrSceneNotFound
	}
	return nil
}

func (s *SceneStore) MarkSceneReady(ctx context.Context, id uuid.UUID, media ingest.SceneMedia) (*ingest.Scene, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE scenes
		SET processing_status = 'ready',
			processing_error = NULL,
			thumbnail_key = $2,
			thumbnail_url = $3,
			duration_seconds = $4,
			resolution = $5,
			file_size_bytes = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING `+sceneColumns,
		id, media.ThumbnailKey, media.ThumbnailURL, media.DurationSeconds,
		media.Resolution, media.SizeBytes,
	)
	return scanScene(row)
}

func (s *SceneStore) MarkSceneFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scenes
		SET processing_status = 'failed',
			processing_error = $2,
			updated_at = now()
		WHERE id = $1`,
		id, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scene failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrSceneNotFound
	}
	return nil
}

// DeleteScene removes a scene unless episodes still reference it. The
// episode_scenes foreign key enforces the guard; on violation we count the
// references so the caller can report them.
func (s *SceneStore) DeleteScene(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM scenes WHERE id = $1`, id)
	if err != nil {
		if IsForeignKeyViolation(err) {
			var count int
			countErr := s.db.QueryRow(ctx,
				`SELECT count(*) FROM episode_scenes WHERE scene_id = $1`, id,
			).Scan(&count)
			if countErr != nil {
				return fmt.Errorf("failed to count scene references: %w", countErr)
			}
			return &ingest.SceneInUseError{Count: count}
		}
		return fmt.Errorf("failed to delete scene: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrSceneNotFound
	}
	return nil
}
