package job_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/jobs"
)

// HandleIndex lists jobs filtered by episodeId, status and jobType.
func HandleIndex(svc *jobs.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := common.Pagination(c)

		list, total, err := svc.List(c.Request().Context(), jobs.Filter{
			EpisodeID: c.QueryParam("episodeId"),
			Status:    jobs.Status(c.QueryParam("status")),
			Type:      jobs.Type(c.QueryParam("jobType")),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			slog.Error("failed to list jobs", "error", err)
			return common.ErrInternal("failed to list jobs")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"jobs":   jobViews(list),
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}
