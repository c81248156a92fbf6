package repository

import (
	"context"

	"github.com/google/uuid"
)

// ProgressStore shares live job progress and cancellation requests between
// the API and the worker running the job.
type ProgressStore interface {
	// SetProgress records the latest progress of a job.
	SetProgress(ctx context.Context, jobID uuid.UUID, progress float64) error

	// GetProgress returns the latest progress. ok is false when none is recorded.
	GetProgress(ctx context.Context, jobID uuid.UUID) (progress float64, ok bool, err error)

	// RequestCancel flags a job for cancellation.
	RequestCancel(ctx context.Context, jobID uuid.UUID) error

	// CancelRequested reports whether cancellation was requested for a job.
	CancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error)

	// Clear removes progress and cancellation state for a job.
	Clear(ctx context.Context, jobID uuid.UUID) error
}
