package scene_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/ingest"
)

type updateRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
	Characters  []string `json:"characters"`
}

// HandleUpdate edits the operator-facing fields of a scene. Omitted fields
// keep their current values.
func HandleUpdate(lib *ingest.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req updateRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request body")
		}

		scene, err := lib.Update(c.Request().Context(), id, ingest.UpdateSceneParams{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			Characters:  req.Characters,
		})
		if err != nil {
			var verr *ingest.ValidationError
			switch {
			case errors.Is(err, ingest.ErrSceneNotFound):
				return common.ErrNotFound("scene not found")
			case errors.As(err, &verr):
				return common.ErrBadRequest(verr.Error())
			}
			slog.Error("failed to update scene", "scene_id", id, "error", err)
			return common.ErrInternal("failed to update scene")
		}

		return c.JSON(http.StatusOK, sceneView(scene))
	}
}
