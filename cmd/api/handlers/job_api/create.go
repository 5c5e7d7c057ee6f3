package job_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/jobs"
)

type createRequest struct {
	JobType    string         `json:"jobType"`
	EpisodeID  string         `json:"episodeId"`
	FileID     *string        `json:"fileId"`
	Payload    map[string]any `json:"payload"`
	MaxRetries int            `json:"maxRetries"`
}

// HandleCreate accepts a new job. The record commits together with its
// enqueue intent; the relay delivers it to the queue moments later.
func HandleCreate(svc *jobs.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request body")
		}

		job, err := svc.Create(c.Request().Context(), jobs.CreateParams{
			Type:       jobs.Type(req.JobType),
			EpisodeID:  req.EpisodeID,
			FileID:     req.FileID,
			Payload:    req.Payload,
			MaxRetries: req.MaxRetries,
		})
		if err != nil {
			var verr *jobs.ValidationError
			if errors.As(err, &verr) {
				return common.ErrBadRequest(verr.Error())
			}
			slog.Error("failed to create job", "error", err)
			return common.ErrInternal("failed to create job")
		}

		return c.JSON(http.StatusCreated, jobView(job))
	}
}
