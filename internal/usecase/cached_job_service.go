package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/infrastructure/cache"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedJobServiceConfig holds configuration for CachedJobService.
type CachedJobServiceConfig struct {
	// CacheTTL is the TTL for cached job records.
	CacheTTL time.Duration
}

// DefaultCachedJobServiceConfig returns the default configuration.
func DefaultCachedJobServiceConfig() CachedJobServiceConfig {
	return CachedJobServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedJobService wraps JobService with a read-through cache.
// Only terminal jobs are cached; active jobs change under the worker and
// carry live progress.
type cachedJobService struct {
	delegate JobService
	cache    cache.JobCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// NewCachedJobService creates a new CachedJobService wrapping the provided JobService.
func NewCachedJobService(
	delegate JobService,
	jobCache cache.JobCache,
	cfg CachedJobServiceConfig,
) JobService {
	return &cachedJobService{
		delegate: delegate,
		cache:    jobCache,
		cacheTTL: cfg.CacheTTL,
	}
}

// CreateJob delegates to the underlying service.
func (s *cachedJobService) CreateJob(ctx context.Context, spec model.JobSpec) (*CreateJobOutput, error) {
	return s.delegate.CreateJob(ctx, spec)
}

// StartJob invalidates the cache and delegates to the underlying service.
func (s *cachedJobService) StartJob(ctx context.Context, jobID uuid.UUID) error {
	s.invalidate(ctx, jobID, "start")
	return s.delegate.StartJob(ctx, jobID)
}

// CancelJob invalidates the cache and delegates to the underlying service.
func (s *cachedJobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	s.invalidate(ctx, jobID, "cancel")
	return s.delegate.CancelJob(ctx, jobID)
}

// GetDownloadURL delegates; presigned URLs are never cached.
func (s *cachedJobService) GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	return s.delegate.GetDownloadURL(ctx, jobID)
}

// GetJob retrieves a job through the cache.
// Uses singleflight to coalesce concurrent status polls for the same job.
func (s *cachedJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	result, err, shared := s.sfGroup.Do(jobID.String(), func() (any, error) {
		return s.getJobWithCache(ctx, jobID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	// Callers sharing a flight receive the same pointer.
	job := *result.(*model.Job)
	return &job, nil
}

func (s *cachedJobService) getJobWithCache(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	job, err := s.cache.Get(ctx, jobID)
	if err != nil {
		slog.Warn("cache get failed, falling back to database",
			"job_id", jobID,
			"error", err,
		)
	}

	if job != nil {
		return job, nil
	}

	job, err = s.delegate.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !job.Status.IsTerminal() {
		return job, nil
	}

	if err := s.cache.Set(ctx, job, s.cacheTTL); err != nil {
		slog.Warn("failed to cache job",
			"job_id", jobID,
			"error", err,
		)
	}

	return job, nil
}

func (s *cachedJobService) invalidate(ctx context.Context, jobID uuid.UUID, op string) {
	if err := s.cache.Delete(ctx, jobID); err != nil {
		slog.Warn("failed to invalidate job cache",
			"job_id", jobID,
			"operation", op,
			"error", err,
		)
	}
}
