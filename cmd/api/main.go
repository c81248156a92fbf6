package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/gocompress/internal/api/handler"
	"github.com/hszk-dev/gocompress/internal/api/middleware"
	"github.com/hszk-dev/gocompress/internal/config"
	"github.com/hszk-dev/gocompress/internal/infrastructure/cache"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
	"github.com/hszk-dev/gocompress/internal/infrastructure/postgres"
	"github.com/hszk-dev/gocompress/internal/infrastructure/queue"
	"github.com/hszk-dev/gocompress/internal/infrastructure/storage"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	if err := pgClient.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	metrics.RegisterDBPool(func() metrics.DBPoolStats {
		s := pgClient.Stats()
		return metrics.DBPoolStats{Acquired: s.AcquiredConns, Idle: s.IdleConns, Total: s.TotalConns}
	})
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:       cfg.MinIO.Endpoint,
		PublicEndpoint: cfg.MinIO.PublicEndpoint,
		AccessKey:      cfg.MinIO.AccessKey,
		SecretKey:      cfg.MinIO.SecretKey,
		Bucket:         cfg.MinIO.Bucket,
		UseSSL:         cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.QueueName = cfg.RabbitMQ.Queue
	queueCfg.RoutingKey = cfg.RabbitMQ.Queue
	queueCfg.DeadLetter = cfg.RabbitMQ.Queue + ".dead"
	queueClient, err := queue.NewClient(ctx, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	jobSvc := usecase.NewJobService(
		postgres.NewJobRepository(pgClient.Pool()),
		storageClient,
		queueClient,
		cache.NewRedisProgressStore(redisClient, cfg.Redis.ProgressTTL),
		usecase.JobServiceConfig{
			UploadURLExpiry:   cfg.Server.UploadURLExpiry,
			DownloadURLExpiry: cfg.Server.DownloadURLExpiry,
		},
	)
	jobSvc = usecase.NewCachedJobService(
		jobSvc,
		cache.NewRedisJobCache(redisClient),
		usecase.CachedJobServiceConfig{CacheTTL: cfg.Server.CacheTTL},
	)

	readiness := map[string]handler.Pinger{
		"postgres": pgClient.Ping,
		"minio":    storageClient.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	r := setupRouter(logger, handler.NewJobHandler(jobSvc), handler.NewEstimateHandler(cfg.Compression.Orchestrator().Planner), readiness)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(
	logger *slog.Logger,
	jobs *handler.JobHandler,
	estimates *handler.EstimateHandler,
	readiness map[string]handler.Pinger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready(readiness))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", jobs.Routes)
		r.Post("/estimates", estimates.Estimate)
	})

	return r
}
