package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/primepisodes/media-engine/cmd/api/internal/web"
	"github.com/primepisodes/media-engine/internal/application"
	"github.com/primepisodes/media-engine/internal/config"
	"github.com/primepisodes/media-engine/internal/db"
	"github.com/primepisodes/media-engine/internal/ingest"
	"github.com/primepisodes/media-engine/internal/jobs"
	"github.com/primepisodes/media-engine/internal/objectstore"
	"github.com/primepisodes/media-engine/internal/outbox"
	"github.com/primepisodes/media-engine/internal/queue"
	"github.com/primepisodes/media-engine/pkg/ffmpeg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting api service")

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

	library := ingest.NewLibrary(
		db.NewSceneStore(dbc),
		objects,
		ffmpeg.NewProcessor(),
		ingest.WithIngestConcurrency(conf.IngestConcurrency),
	)
	defer library.Wait()

	relay := outbox.NewRelay(jobStore, transport,
		outbox.WithInterval(time.Duration(conf.OutboxIntervalMS)*time.Millisecond),
		outbox.WithBatchSize(conf.OutboxBatchSize),
	)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("outbox relay stopped", "error", err)
		}
	}()

	e, err := web.NewWebserver(jobService, library, transport)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
