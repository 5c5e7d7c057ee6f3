package scene_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/ingest"
)

// HandleIndex lists scenes filtered by showId, processingStatus and a free
// text search over titles and tags.
func HandleIndex(lib *ingest.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := common.Pagination(c)

		list, total, err := lib.List(c.Request().Context(), ingest.SceneFilter{
			ShowID: c.QueryParam("showId"),
			Status: ingest.SceneStatus(c.QueryParam("processingStatus")),
			Search: c.QueryParam("search"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			slog.Error("failed to list scenes", "error", err)
			return common.ErrInternal("failed to list scenes")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"scenes": sceneViews(list),
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}
