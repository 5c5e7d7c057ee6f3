package job_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/jobs"
)

// HandleCancel cancels a pending or processing job. Cancellation is
// cooperative: a handler already running finishes, but the record accepts no
// further transitions.
func HandleCancel(svc *jobs.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		job, err := svc.Cancel(c.Request().Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				return common.ErrNotFound("job not found")
			case errors.Is(err, jobs.ErrCancelNotAllowed):
				return common.ErrConflict("job already finished")
			}
			slog.Error("failed to cancel job", "job_id", id, "error", err)
			return common.ErrInternal("failed to cancel job")
		}

		return c.JSON(http.StatusOK, jobView(job))
	}
}
