package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
)

const (
	jobKeyPrefix      = "job:"
	progressKeyPrefix = "job:progress:"
	cancelKeyPrefix   = "job:cancel:"
)

// RedisJobCache implements JobCache using Redis as the backing store.
// Jobs are stored as JSON; the domain model has no JSON tags of its own.
type RedisJobCache struct {
	client *redis.Client
}

// Compile-time verification that RedisJobCache implements JobCache.
var _ JobCache = (*RedisJobCache)(nil)

// NewRedisJobCache creates a new Redis-backed job cache.
func NewRedisJobCache(client *redis.Client) *RedisJobCache {
	return &RedisJobCache{client: client}
}

// jobJSON is the cached representation of a Job.
type jobJSON struct {
	ID                 string                   `json:"id"`
	SourceKey          string                   `json:"source_key"`
	OutputKey          string                   `json:"output_key"`
	Tier               string                   `json:"tier"`
	Codec              string                   `json:"codec"`
	Options            model.Options            `json:"options"`
	CustomWidth        int                      `json:"custom_width,omitempty"`
	CustomHeight       int                      `json:"custom_height,omitempty"`
	CustomBitrate      int                      `json:"custom_bitrate,omitempty"`
	CustomAudioBitrate int                      `json:"custom_audio_bitrate,omitempty"`
	Status             string                   `json:"status"`
	Attempts           int                      `json:"attempts"`
	Progress           float64                  `json:"progress"`
	FailureKind        string                   `json:"failure_kind,omitempty"`
	FailureReason      string                   `json:"failure_reason,omitempty"`
	Result             *model.CompressionResult `json:"result,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// Get retrieves a job from Redis. Returns nil, nil on cache miss.
func (c *RedisJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	data, err := c.client.Get(ctx, jobKeyPrefix+jobID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	job, err := decodeJob(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize job: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return job, nil
}

// Set stores a job in Redis with the specified TTL.
func (c *RedisJobCache) Set(ctx context.Context, job *model.Job, ttl time.Duration) error {
	data, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("serialize job: %w", err)
	}

	if err := c.client.Set(ctx, jobKeyPrefix+job.ID.String(), data, ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a job from Redis.
func (c *RedisJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	if err := c.client.Del(ctx, jobKeyPrefix+jobID.String()).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

func encodeJob(job *model.Job) ([]byte, error) {
	return json.Marshal(jobJSON{
		ID:                 job.ID.String(),
		SourceKey:          job.SourceKey,
		OutputKey:          job.OutputKey,
		Tier:               job.Tier.String(),
		Codec:              job.Codec.String(),
		Options:            job.Options,
		CustomWidth:        job.CustomWidth,
		CustomHeight:       job.CustomHeight,
		CustomBitrate:      job.CustomBitrate,
		CustomAudioBitrate: job.CustomAudioBitrate,
		Status:             job.Status.String(),
		Attempts:           job.Attempts,
		Progress:           job.Progress,
		FailureKind:        job.FailureKind.String(),
		FailureReason:      job.FailureReason,
		Result:             job.Result,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	})
}

func decodeJob(data []byte) (*model.Job, error) {
	var v jobJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID: %w", err)
	}

	return &model.Job{
		ID:                 id,
		SourceKey:          v.SourceKey,
		OutputKey:          v.OutputKey,
		Tier:               model.QualityTier(v.Tier),
		Codec:              model.Codec(v.Codec),
		Options:            v.Options,
		CustomWidth:        v.CustomWidth,
		CustomHeight:       v.CustomHeight,
		CustomBitrate:      v.CustomBitrate,
		CustomAudioBitrate: v.CustomAudioBitrate,
		Status:             model.Status(v.Status),
		Attempts:           v.Attempts,
		Progress:           v.Progress,
		FailureKind:        model.ErrorKind(v.FailureKind),
		FailureReason:      v.FailureReason,
		Result:             v.Result,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}, nil
}

// RedisProgressStore implements repository.ProgressStore with plain string
// keys that expire after ttl.
type RedisProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Compile-time verification that RedisProgressStore implements repository.ProgressStore.
var _ repository.ProgressStore = (*RedisProgressStore)(nil)

// NewRedisProgressStore creates a progress store. ttl bounds how long
// progress and cancellation flags outlive an abandoned job.
func NewRedisProgressStore(client *redis.Client, ttl time.Duration) *RedisProgressStore {
	return &RedisProgressStore{client: client, ttl: ttl}
}

func (s *RedisProgressStore) SetProgress(ctx context.Context, jobID uuid.UUID, progress float64) error {
	value := strconv.FormatFloat(progress, 'f', 4, 64)
	if err := s.client.Set(ctx, progressKeyPrefix+jobID.String(), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set progress: %w", err)
	}
	return nil
}

func (s *RedisProgressStore) GetProgress(ctx context.Context, jobID uuid.UUID) (float64, bool, error) {
	value, err := s.client.Get(ctx, progressKeyPrefix+jobID.String()).Float64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get progress: %w", err)
	}
	return value, true, nil
}

func (s *RedisProgressStore) RequestCancel(ctx context.Context, jobID uuid.UUID) error {
	if err := s.client.Set(ctx, cancelKeyPrefix+jobID.String(), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cancel: %w", err)
	}
	return nil
}

func (s *RedisProgressStore) CancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, cancelKeyPrefix+jobID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists cancel: %w", err)
	}
	return n > 0, nil
}

func (s *RedisProgressStore) Clear(ctx context.Context, jobID uuid.UUID) error {
	id := jobID.String()
	if err := s.client.Del(ctx, progressKeyPrefix+id, cancelKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del progress: %w", err)
	}
	return nil
}
