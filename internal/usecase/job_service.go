package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
)

var (
	// ErrJobAlreadyFinished is returned when starting or cancelling a job in a terminal state.
	ErrJobAlreadyFinished = errors.New("job has already finished")
	// ErrSourceNotUploaded is returned when starting a job whose source object is missing.
	ErrSourceNotUploaded = errors.New("source video has not been uploaded")
	// ErrJobNotCompleted is returned when requesting the output of an unfinished job.
	ErrJobNotCompleted = errors.New("job has not completed")
)

// CreateJobOutput contains the result of creating a job.
type CreateJobOutput struct {
	Job       *model.Job
	UploadURL string
}

// JobService defines the interface for compression job business logic.
type JobService interface {
	// CreateJob stores a new job and returns a presigned URL for the source upload.
	CreateJob(ctx context.Context, spec model.JobSpec) (*CreateJobOutput, error)

	// StartJob queues an uploaded job for compression.
	// This operation is idempotent - starting a queued or running job returns nil.
	StartJob(ctx context.Context, jobID uuid.UUID) error

	// GetJob retrieves a job, with live progress merged in while it runs.
	GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error)

	// CancelJob cancels a job. Jobs that have not reached a worker are
	// cancelled immediately; running jobs are flagged for the worker.
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// GetDownloadURL returns a presigned URL for the output of a completed job.
	GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error)
}

// JobServiceConfig holds configuration for JobService.
type JobServiceConfig struct {
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
}

// DefaultJobServiceConfig returns the default configuration.
func DefaultJobServiceConfig() JobServiceConfig {
	return JobServiceConfig{
		UploadURLExpiry:   15 * time.Minute,
		DownloadURLExpiry: time.Hour,
	}
}

type jobService struct {
	repo     repository.JobRepository
	storage  repository.ObjectStorage
	queue    repository.MessageQueue
	progress repository.ProgressStore

	cfg JobServiceConfig
}

// NewJobService creates a new JobService instance.
func NewJobService(
	repo repository.JobRepository,
	storage repository.ObjectStorage,
	queue repository.MessageQueue,
	progress repository.ProgressStore,
	cfg JobServiceConfig,
) JobService {
	return &jobService{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		progress: progress,
		cfg:      cfg,
	}
}

// CreateJob validates the spec, generates the upload URL and persists the job.
func (s *jobService) CreateJob(ctx context.Context, spec model.JobSpec) (*CreateJobOutput, error) {
	job, err := model.NewJob(spec)
	if err != nil {
		return nil, err
	}

	uploadURL, err := s.storage.GeneratePresignedUploadURL(ctx, job.SourceKey, s.cfg.UploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("generate presigned upload URL: %w", err)
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return &CreateJobOutput{
		Job:       job,
		UploadURL: uploadURL,
	}, nil
}

// StartJob moves an uploaded job to QUEUED and publishes its task.
func (s *jobService) StartJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch {
	case job.Status == model.StatusQueued || job.Status == model.StatusProcessing:
		return nil
	case job.Status.IsTerminal():
		return ErrJobAlreadyFinished
	}

	if _, err := s.storage.Stat(ctx, job.SourceKey); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return ErrSourceNotUploaded
		}
		return fmt.Errorf("stat source: %w", err)
	}

	if err := job.TransitionTo(model.StatusQueued); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	task := repository.CompressTask{
		JobID:     job.ID,
		SourceKey: job.SourceKey,
		OutputKey: job.OutputKey,
	}

	if err := s.queue.PublishCompressTask(ctx, task); err != nil {
		return fmt.Errorf("publish compress task: %w", err)
	}

	return nil
}

// GetJob retrieves a job. Progress of a running job comes from the
// progress store because the database copy is only written at the end.
func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.StatusProcessing || s.progress == nil {
		return job, nil
	}

	progress, ok, err := s.progress.GetProgress(ctx, jobID)
	if err != nil {
		slog.Warn("failed to read live progress",
			"job_id", jobID,
			"error", err,
		)
		return job, nil
	}
	if ok {
		job.Progress = progress
	}

	return job, nil
}

// CancelJob cancels a job that has not finished.
func (s *jobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case model.StatusCompleted, model.StatusFailed:
		return ErrJobAlreadyFinished
	case model.StatusCancelled:
		return nil
	case model.StatusProcessing:
		if err := s.progress.RequestCancel(ctx, jobID); err != nil {
			return fmt.Errorf("request cancel: %w", err)
		}
		return nil
	}

	// A queued task still reaches a worker, which skips cancelled jobs.
	if err := job.Fail(model.KindCancelled, "cancelled before processing"); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	return nil
}

// GetDownloadURL returns a presigned URL for the compressed output. When
// the result fell back to the original, the URL points at the source.
func (s *jobService) GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}

	if !job.IsCompleted() || job.Result == nil {
		return "", ErrJobNotCompleted
	}

	url, err := s.storage.GeneratePresignedDownloadURL(ctx, job.Result.OutputPath, s.cfg.DownloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("generate presigned download URL: %w", err)
	}

	return url, nil
}
