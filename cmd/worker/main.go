// Package main runs the background transcription worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soundscribe/backend/config"
	"github.com/soundscribe/backend/internal/audios"
	"github.com/soundscribe/backend/internal/pipeline"
	"github.com/soundscribe/backend/internal/prompts"
	"github.com/soundscribe/backend/internal/refiner"
	"github.com/soundscribe/backend/internal/transcriber"
	"github.com/soundscribe/backend/internal/transcripts"
	"github.com/soundscribe/backend/internal/worker"
	"github.com/soundscribe/backend/pkg/database"
	"github.com/soundscribe/backend/pkg/progress"
	"github.com/soundscribe/backend/pkg/queue"
	"github.com/soundscribe/backend/pkg/redis"
	"github.com/soundscribe/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.AudioBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AudioBucket:          cfg.AWS.AudioBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
			s3Client = nil
		}
	}

	audioRepo := audios.NewRepository(pool)
	transcriptRepo := transcripts.NewRepository(pool)
	promptRepo := prompts.NewRepository(pool)

	vendor := transcriber.New(transcriber.Config{
		URL:           cfg.Transcriber.URL,
		Token:         cfg.Transcriber.Token,
		Language:      cfg.Transcriber.Language,
		UploadRetries: cfg.Transcriber.UploadRetries,
		RetryBackoff:  cfg.Transcriber.RetryBackoff,
		HTTPTimeout:   cfg.Transcriber.HTTPTimeout,
	}, logger)

	refinerClient := refiner.New(refiner.Config{
		URL:         cfg.Refiner.URL,
		APIKey:      cfg.Refiner.APIKey,
		Model:       cfg.Refiner.Model,
		MaxTokens:   cfg.Refiner.MaxTokens,
		Temperature: cfg.Refiner.Temperature,
		Timeout:     cfg.Refiner.Timeout,
	}, logger)

	resolver := prompts.NewResolver(promptRepo, logger)
	progressStore := progress.NewStore(rdb.Client, 0, logger)
	// Lock TTL covers a full run: the poll ceiling plus the slower legs.
	locker := pipeline.NewRedisLocker(rdb.Client, cfg.Transcriber.PollCeiling+5*time.Minute)

	orch := pipeline.New(pipeline.Config{
		WarmupDelay:  cfg.Transcriber.WarmupDelay,
		PollInterval: cfg.Transcriber.PollInterval,
		PollCeiling:  cfg.Transcriber.PollCeiling,
	}, audioRepo, transcriptRepo, vendor, refinerClient, resolver, progressStore, locker, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	var archiver worker.Archiver
	var keys worker.ArchiveKeyStore
	if s3Client != nil {
		archiver = s3Client
		keys = audioRepo
	}
	processor := worker.NewTranscriptionProcessor(orch, jobQueue, archiver, keys, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
