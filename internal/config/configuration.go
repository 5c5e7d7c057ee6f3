package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// AWS Configuration. The endpoint override points queue and storage at a
	// local emulator; leave it empty in production.
	AWSRegion      string `mapstructure:"AWS_REGION" validate:"required"`
	AWSEndpointURL string `mapstructure:"AWS_ENDPOINT_URL"`

	// Queue Configuration
	SQSQueueURL             string `mapstructure:"SQS_QUEUE_URL" validate:"required"`
	SQSDeadLetterURL        string `mapstructure:"SQS_DLQ_URL"`
	SQSVisibilityTimeoutSec int    `mapstructure:"SQS_VISIBILITY_TIMEOUT"`

	// Object Storage Configuration
	S3AssetBucket string `mapstructure:"S3_ASSET_BUCKET" validate:"required"`

	// Worker Configuration
	WorkerConcurrency int `mapstructure:"WORKER_CONCURRENCY" validate:"gte=1,lte=64"`

	// Ingestion Configuration
	IngestConcurrency int `mapstructure:"INGEST_CONCURRENCY" validate:"gte=1,lte=64"`

	// Outbox Relay Configuration
	OutboxIntervalMS int `mapstructure:"OUTBOX_INTERVAL_MS" validate:"gte=100"`
	OutboxBatchSize  int `mapstructure:"OUTBOX_BATCH_SIZE" validate:"gte=1"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
	slog.Info("Environment variables bound", "config", c)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("SQS_VISIBILITY_TIMEOUT", 300)
	viper.SetDefault("WORKER_CONCURRENCY", 5)
	viper.SetDefault("INGEST_CONCURRENCY", 4)
	viper.SetDefault("OUTBOX_INTERVAL_MS", 1000)
	viper.SetDefault("OUTBOX_BATCH_SIZE", 50)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
