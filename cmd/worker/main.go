package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/gocompress/internal/capability"
	"github.com/hszk-dev/gocompress/internal/config"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/infrastructure/cache"
	"github.com/hszk-dev/gocompress/internal/infrastructure/localfs"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
	"github.com/hszk-dev/gocompress/internal/infrastructure/postgres"
	"github.com/hszk-dev/gocompress/internal/infrastructure/queue"
	"github.com/hszk-dev/gocompress/internal/infrastructure/storage"
	"github.com/hszk-dev/gocompress/internal/transcoder"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// consumeCtx stops intake on a signal; workCtx aborts the in-flight
	// compression only once the shutdown timeout expires.
	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	defer stopConsuming()
	workCtx, abortWork := context.WithCancel(context.Background())
	defer abortWork()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(consumeCtx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	metrics.RegisterDBPool(func() metrics.DBPoolStats {
		s := pgClient.Stats()
		return metrics.DBPoolStats{Acquired: s.AcquiredConns, Idle: s.IdleConns, Total: s.TotalConns}
	})
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(consumeCtx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.QueueName = cfg.RabbitMQ.Queue
	queueCfg.RoutingKey = cfg.RabbitMQ.Queue
	queueCfg.DeadLetter = cfg.RabbitMQ.Queue + ".dead"
	queueClient, err := queue.NewClient(consumeCtx, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Redis carries live progress and cancellation flags
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(consumeCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	// Initialize the compression pipeline
	ffmpegCfg := cfg.FFmpeg.Encoder()

	var assessor usecase.CapabilityAssessor
	if cfg.Capability.Enabled {
		assessor = capability.NewAnalyzer(
			cfg.Capability.Analyzer(),
			capability.NewHostInfo(),
			transcoder.NewFFmpegProbe(ffmpegCfg),
		)
	}

	orchestrator := usecase.NewOrchestrator(
		transcoder.NewFFmpegEncoder(ffmpegCfg),
		assessor,
		localfs.New(),
		nil,
		cfg.Compression.Orchestrator(),
	)

	processCfg := usecase.DefaultProcessServiceConfig()
	processCfg.TempDir = cfg.Worker.TempDir
	processCfg.MaxDeliveries = cfg.Worker.MaxDeliveries
	processCfg.CancelPollInterval = cfg.Worker.CancelPollInterval

	processSvc := usecase.NewProcessService(
		postgres.NewJobRepository(pgClient.Pool()),
		storageClient,
		cache.NewRedisProgressStore(redisClient, cfg.Redis.ProgressTTL),
		transcoder.NewFFprobeProber(ffmpegCfg),
		orchestrator,
		processCfg,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// consumerDone closes once the consumer loop returns, which happens only
	// after the in-flight task has been handled.
	consumerDone := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		defer close(consumerDone)
		logger.Info("starting worker, consuming compress tasks", slog.String("queue", queueCfg.QueueName))
		err := queueClient.ConsumeCompressTasks(consumeCtx, func(task repository.CompressTask) error {
			logger.Info("processing task",
				slog.String("job_id", task.JobID.String()),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := processSvc.ProcessTask(workCtx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("job_id", task.JobID.String()),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task finished", slog.String("job_id", task.JobID.String()))
			return nil
		})
		if err != nil && consumeCtx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	stopConsuming()

	select {
	case <-consumerDone:
		logger.Info("in-flight task completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, aborting in-flight compression")
		abortWork()
		<-consumerDone
	}

	logger.Info("worker stopped")
	return nil
}
