package job_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/jobs"
)

// HandleStatus returns one job by id.
func HandleStatus(svc *jobs.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		job, err := svc.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				return common.ErrNotFound("job not found")
			}
			slog.Error("failed to fetch job", "job_id", id, "error", err)
			return common.ErrInternal("failed to fetch job")
		}

		return c.JSON(http.StatusOK, jobView(job))
	}
}
