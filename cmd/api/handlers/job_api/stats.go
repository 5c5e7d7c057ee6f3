package job_api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/queue"
)

// StatsProvider reports queue depth counters.
type StatsProvider interface {
	Stats(ctx context.Context) (*queue.Stats, error)
}

// HandleQueueStats reports approximate queue depth for operators.
func HandleQueueStats(provider StatsProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := provider.Stats(c.Request().Context())
		if err != nil {
			slog.Error("failed to fetch queue stats", "error", err)
			return common.ErrInternal("failed to fetch queue stats")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"visibleMessages":  stats.VisibleMessages,
			"inFlightMessages": stats.InFlightMessages,
			"delayedMessages":  stats.DelayedMessages,
		})
	}
}
