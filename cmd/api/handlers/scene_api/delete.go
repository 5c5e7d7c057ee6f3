package scene_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/ingest"
)

// HandleDelete removes a scene and its stored media. Scenes referenced by
// episodes are rejected with the reference count so the operator can see
// what blocks the delete.
func HandleDelete(lib *ingest.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := lib.Delete(c.Request().Context(), id); err != nil {
			var inUse *ingest.SceneInUseError
			switch {
			case errors.Is(err, ingest.ErrSceneNotFound):
				return common.ErrNotFound("scene not found")
			case errors.As(err, &inUse):
				return echo.NewHTTPError(http.StatusConflict, map[string]any{
					"message":        "scene is referenced by episodes",
					"referenceCount": inUse.Count,
				})
			}
			slog.Error("failed to delete scene", "scene_id", id, "error", err)
			return common.ErrInternal("failed to delete scene")
		}

		return c.NoContent(http.StatusNoContent)
	}
}
