// Package web wires the echo server for the producer-facing API.
package web

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/primepisodes/media-engine/cmd/api/handlers/job_api"
	"github.com/primepisodes/media-engine/cmd/api/handlers/scene_api"
	"github.com/primepisodes/media-engine/internal/ingest"
	"github.com/primepisodes/media-engine/internal/jobs"
)

type Webserver struct {
	*echo.Echo
	jobService *jobs.Service
	library    *ingest.Library
	queueStats job_api.StatsProvider
}

func NewWebserver(jobService *jobs.Service, library *ingest.Library, queueStats job_api.StatsProvider) (*Webserver, error) {
	webserver := &Webserver{
		Echo:       echo.New(),
		jobService: jobService,
		library:    library,
		queueStats: queueStats,
	}

	webserver.registerRoutes()

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func (s *Webserver) registerRoutes() {
	api := s.Group("/api/v1")

	api.POST("/jobs", job_api.HandleCreate(s.jobService))
	api.GET("/jobs", job_api.HandleIndex(s.jobService))
	api.GET("/jobs/:id", job_api.HandleStatus(s.jobService))
	api.POST("/jobs/:id/retry", job_api.HandleRetry(s.jobService))
	api.POST("/jobs/:id/cancel", job_api.HandleCancel(s.jobService))
	api.GET("/queue/stats", job_api.HandleQueueStats(s.queueStats))

	api.POST("/scene-library/upload", scene_api.HandleUpload(s.library))
	api.GET("/scene-library", scene_api.HandleIndex(s.library))
	api.GET("/scene-library/:id", scene_api.HandleGet(s.library))
	api.PUT("/scene-library/:id", scene_api.HandleUpdate(s.library))
	api.DELETE("/scene-library/:id", scene_api.HandleDelete(s.library))

	s.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	// Clip uploads are large; everything else is JSON.
	s.Use(middleware.BodyLimit("512M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}
