package job_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/jobs"
)

// HandleRetry re-queues a failed job while retry budget remains.
func HandleRetry(svc *jobs.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		job, err := svc.Retry(c.Request().Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				return common.ErrNotFound("job not found")
			case errors.Is(err, jobs.ErrRetryNotAllowed):
				return common.ErrConflict("only failed jobs can be retried")
			case errors.Is(err, jobs.ErrMaxRetriesExceeded):
				return common.ErrConflict("retry budget exhausted")
			}
			slog.Error("failed to retry job", "job_id", id, "error", err)
			return common.ErrInternal("failed to retry job")
		}

		return c.JSON(http.StatusOK, jobView(job))
	}
}
