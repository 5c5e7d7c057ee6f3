package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/primepisodes/media-engine/internal/application"
	"github.com/primepisodes/media-engine/internal/config"
	"github.com/primepisodes/media-engine/internal/db"
	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/objectstore"
	"github.com/primepisodes/media-engine/internal/queue"
	"github.com/primepisodes/media-engine/internal/worker"
	"github.com/primepisodes/media-engine/pkg/ffmpeg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting worker service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	transport, err := queue.NewSQSTransport(queue.SQSConfig{
		Region:            conf.AWSRegion,
		Endpoint:          conf.AWSEndpointURL,
		QueueURL:          conf.SQSQueueURL,
		DeadLetterURL:     conf.SQSDeadLetterURL,
		VisibilityTimeout: time.Duration(conf.SQSVisibilityTimeoutSec) * time.Second,
	})
	if err != nil {
		slog.Error("failed to create queue transport", "error", err)
		os.Exit(1)
	}

	objects, err := objectstore.NewS3Store(objectstore.S3Config{
		Region:   conf.AWSRegion,
		Endpoint: conf.AWSEndpointURL,
		Bucket:   conf.S3AssetBucket,
	})
	if err != nil {
		slog.Error("failed to create object store", "error", err)
		os.Exit(1)
	}

	jobStore := db.NewJobStore(dbc)
	jobService := jobs.NewService(jobStore)

	processor := worker.NewProcessor(jobStore, transport)
	worker.NewHandlers(objects, ffmpeg.NewProcessor(), jobService).RegisterAll(processor)

	consumer := worker.NewPool(transport, processor, worker.WithConcurrency(conf.WorkerConcurrency))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker pool failed", "error", err)
		os.Exit(1)
	}
}
