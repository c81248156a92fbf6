package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/transcoder"
)

// DefaultMaxDeliveries is the number of times a task is redelivered after
// transient infrastructure failures before its job is marked failed.
const DefaultMaxDeliveries = 3

// ProcessServiceConfig holds configuration for ProcessService.
type ProcessServiceConfig struct {
	// TempDir is the base directory for per-job working directories.
	TempDir string
	// MaxDeliveries bounds redeliveries of a single task.
	MaxDeliveries int
	// CancelPollInterval is how often the cancellation flag is checked.
	CancelPollInterval time.Duration
	// ProgressStep is the smallest progress change written to the store.
	ProgressStep float64
}

// DefaultProcessServiceConfig returns the default configuration.
func DefaultProcessServiceConfig() ProcessServiceConfig {
	return ProcessServiceConfig{
		TempDir:            filepath.Join(os.TempDir(), "gocompress"),
		MaxDeliveries:      DefaultMaxDeliveries,
		CancelPollInterval: time.Second,
		ProgressStep:       0.01,
	}
}

// Compressor runs a single compression. *Orchestrator implements it.
type Compressor interface {
	Compress(ctx context.Context, source model.SourceVideo, req CompressRequest, cb Callbacks) (*model.CompressionResult, error)
	Cancel()
	IsActive() bool
}

// Compile-time verification that Orchestrator implements Compressor.
var _ Compressor = (*Orchestrator)(nil)

// ProcessService defines the interface for the worker side of a job.
type ProcessService interface {
	// ProcessTask runs the compression described by a queued task.
	// Returns nil on success or permanent failure (the job is marked).
	// Returns error for transient failures that should trigger a redelivery.
	ProcessTask(ctx context.Context, task repository.CompressTask) error
}

type processService struct {
	repo       repository.JobRepository
	storage    repository.ObjectStorage
	progress   repository.ProgressStore
	prober     transcoder.Prober
	compressor Compressor

	cfg ProcessServiceConfig
}

// NewProcessService creates a new ProcessService instance.
func NewProcessService(
	repo repository.JobRepository,
	storage repository.ObjectStorage,
	progress repository.ProgressStore,
	prober transcoder.Prober,
	compressor Compressor,
	cfg ProcessServiceConfig,
) ProcessService {
	return &processService{
		repo:       repo,
		storage:    storage,
		progress:   progress,
		prober:     prober,
		compressor: compressor,
		cfg:        cfg,
	}
}

// ProcessTask downloads the source, probes it, compresses it, uploads the
// output and records the outcome on the job.
func (s *processService) ProcessTask(ctx context.Context, task repository.CompressTask) error {
	job, err := s.repo.GetByID(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			slog.Warn("dropping task for unknown job", "job_id", task.JobID)
			return nil
		}
		return fmt.Errorf("get job: %w", err)
	}

	// Cancelled while queued, or a duplicate delivery of a finished job.
	if job.Status.IsTerminal() {
		slog.Info("skipping finished job",
			"job_id", job.ID,
			"status", job.Status,
		)
		return nil
	}

	if task.RetryCount >= s.cfg.MaxDeliveries {
		s.finishFailed(ctx, job, model.NewError(model.KindInternal, "task redelivery limit reached", nil))
		return nil
	}

	if job.Status == model.StatusQueued {
		if err := job.TransitionTo(model.StatusProcessing); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, job); err != nil {
			return fmt.Errorf("mark job processing: %w", err)
		}
	}

	workDir := filepath.Join(s.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(filepath.Join(workDir, "out"), 0o755); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputPath := filepath.Join(workDir, filepath.Base(job.SourceKey))
	if err := s.storage.DownloadFile(ctx, job.SourceKey, inputPath); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			s.finishFailed(ctx, job, model.ResourceError("source object is missing"))
			return nil
		}
		return fmt.Errorf("download source: %w", err)
	}

	source, err := s.prober.Probe(ctx, inputPath)
	if err != nil {
		// An unreadable source fails the same way on every delivery.
		s.finishFailed(ctx, job, err)
		return nil
	}

	outputPath := filepath.Join(workDir, "out", filepath.Base(job.OutputKey))
	result, err := s.compress(ctx, job, source, outputPath)
	if err != nil {
		if ctx.Err() != nil {
			// Worker shutdown. The job stays PROCESSING and resumes on redelivery.
			return fmt.Errorf("compress: %w", err)
		}
		s.finishFailed(ctx, job, err)
		return nil
	}

	if err := s.storeOutput(ctx, job, result); err != nil {
		return err
	}

	if err := job.Complete(result); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	s.clearProgress(ctx, job.ID)

	slog.Info("job completed",
		"job_id", job.ID,
		"tier", result.Tier,
		"ratio", result.Ratio,
		"fell_back", result.FellBackToOriginal,
	)

	return nil
}

// compress runs the compressor while a watcher relays cancellation
// requests from the progress store.
func (s *processService) compress(ctx context.Context, job *model.Job, source model.SourceVideo, outputPath string) (*model.CompressionResult, error) {
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go s.watchCancel(watchCtx, job.ID)

	// Progress drops back to 0 on a retry; those resets are always stored.
	lastStored := -1.0
	cb := Callbacks{
		OnProgress: func(p float64) {
			if p < 1 && p > lastStored && p-lastStored < s.cfg.ProgressStep {
				return
			}
			lastStored = p
			if err := s.progress.SetProgress(ctx, job.ID, p); err != nil {
				slog.Warn("failed to store progress",
					"job_id", job.ID,
					"error", err,
				)
			}
		},
		OnStateChange: func(state model.State, attempt int) {
			slog.Debug("compression state changed",
				"job_id", job.ID,
				"state", state,
				"attempt", attempt,
			)
		},
	}

	req := CompressRequest{
		Tier:               job.Tier,
		Codec:              job.Codec,
		CustomWidth:        job.CustomWidth,
		CustomHeight:       job.CustomHeight,
		CustomBitrate:      job.CustomBitrate,
		CustomAudioBitrate: job.CustomAudioBitrate,
		Options:            job.Options,
		OutputPath:         outputPath,
	}

	return s.compressor.Compress(ctx, source, req, cb)
}

func (s *processService) watchCancel(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(s.cfg.CancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := s.progress.CancelRequested(ctx, jobID)
			if err != nil {
				slog.Warn("failed to check cancellation",
					"job_id", jobID,
					"error", err,
				)
				continue
			}
			// Cancel is a no-op until the compression has started.
			if requested && s.compressor.IsActive() {
				slog.Info("cancellation requested", "job_id", jobID)
				s.compressor.Cancel()
				return
			}
		}
	}
}

// storeOutput uploads the compressed file and rewrites the result paths to
// object keys. A fallback result points at the untouched source object.
func (s *processService) storeOutput(ctx context.Context, job *model.Job, result *model.CompressionResult) error {
	result.SourcePath = job.SourceKey

	if result.FellBackToOriginal {
		result.OutputPath = job.SourceKey
		return nil
	}

	size, err := s.storage.UploadFile(ctx, job.OutputKey, result.OutputPath, "video/mp4")
	if err != nil {
		return fmt.Errorf("upload output: %w", err)
	}
	result.OutputPath = job.OutputKey
	result.OutputSize = size

	return nil
}

// finishFailed records a terminal failure. Errors are logged and swallowed
// so the task is acknowledged; the job may stay PROCESSING in that case.
func (s *processService) finishFailed(ctx context.Context, job *model.Job, cause error) {
	kind, reason := model.KindOf(cause), model.ReasonOf(cause)

	if err := job.Fail(kind, reason); err != nil {
		slog.Error("failed to mark job failed",
			"job_id", job.ID,
			"status", job.Status,
			"error", err,
		)
		return
	}
	if err := s.repo.Update(ctx, job); err != nil {
		slog.Error("failed to persist job failure",
			"job_id", job.ID,
			"error", err,
		)
		return
	}
	s.clearProgress(ctx, job.ID)

	slog.Warn("job failed",
		"job_id", job.ID,
		"kind", kind,
		"reason", reason,
	)
}

func (s *processService) clearProgress(ctx context.Context, jobID uuid.UUID) {
	if err := s.progress.Clear(ctx, jobID); err != nil {
		slog.Warn("failed to clear progress",
			"job_id", jobID,
			"error", err,
		)
	}
}
