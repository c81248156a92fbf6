package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// JobRepository defines the interface for compression job persistence.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type JobRepository interface {
	// Create persists a new job.
	// Returns ErrDuplicateJob if a job with the same ID exists.
	Create(ctx context.Context, job *model.Job) error

	// GetByID retrieves a job by its unique identifier.
	// Returns nil and ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error)

	// ListByStatus returns up to limit jobs in the given status, newest first.
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Job, error)

	// Update persists changes to an existing job.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, job *model.Job) error

	// UpdateStatus updates only the status field of a job.
	// Returns ErrJobNotFound if the job does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error
}
