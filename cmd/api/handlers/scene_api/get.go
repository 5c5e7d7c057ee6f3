package scene_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/ingest"
)

// HandleGet returns one scene by id.
func HandleGet(lib *ingest.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		scene, err := lib.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, ingest.ErrSceneNotFound) {
				return common.ErrNotFound("scene not found")
			}
			slog.Error("failed to fetch scene", "scene_id", id, "error", err)
			return common.ErrInternal("failed to fetch scene")
		}

		return c.JSON(http.StatusOK, sceneView(scene))
	}
}
