package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const jobColumns = `id, source_key, output_key, tier, codec, options, custom_width, custom_height, ` +
	`custom_bitrate, custom_audio_bitrate, status, attempts, progress, failure_kind, failure_reason, result, created_at, updated_at`

// JobRepository implements repository.JobRepository using PostgreSQL.
// Options and Result are stored as JSONB.
type JobRepository struct {
	db DBTX
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a new job.
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	const query = `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	options, result, err := encodeJSONColumns(job)
	if err != nil {
		return err
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableJobs).Inc()
	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.SourceKey,
		job.OutputKey,
		job.Tier.String(),
		job.Codec.String(),
		options,
		job.CustomWidth,
		job.CustomHeight,
		job.CustomBitrate,
		job.CustomAudioBitrate,
		job.Status.String(),
		job.Attempts,
		job.Progress,
		nullString(job.FailureKind.String()),
		nullString(job.FailureReason),
		result,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its unique identifier.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableJobs).Inc()
	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	return job, nil
}

// ListByStatus returns up to limit jobs in status, newest first.
func (r *JobRepository) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableJobs).Inc()
	rows, err := r.db.Query(ctx, query, status.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// Update persists changes to an existing job.
func (r *JobRepository) Update(ctx context.Context, job *model.Job) error {
	const query = `
		UPDATE jobs
		SET status = $2, attempts = $3, progress = $4, failure_kind = $5,
			failure_reason = $6, result = $7, updated_at = $8
		WHERE id = $1
	`

	_, result, err := encodeJSONColumns(job)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now()

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableJobs).Inc()
	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.Status.String(),
		job.Attempts,
		job.Progress,
		nullString(job.FailureKind.String()),
		nullString(job.FailureReason),
		result,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// UpdateStatus updates only the status field of a job.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	const query = `
		UPDATE jobs
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableJobs).Inc()
	tag, err := r.db.Exec(ctx, query, id, status.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// scanJob scans a single row into a Job. pgx.Rows satisfies pgx.Row.
func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job           model.Job
		tier, codec   string
		status        string
		options       []byte
		result        []byte
		failureKind   *string
		failureReason *string
	)

	err := row.Scan(
		&job.ID,
		&job.SourceKey,
		&job.OutputKey,
		&tier,
		&codec,
		&options,
		&job.CustomWidth,
		&job.CustomHeight,
		&job.CustomBitrate,
		&job.CustomAudioBitrate,
		&status,
		&job.Attempts,
		&job.Progress,
		&failureKind,
		&failureReason,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Tier = model.QualityTier(tier)
	job.Codec = model.Codec(codec)
	job.Status = model.Status(status)
	if failureKind != nil {
		job.FailureKind = model.ErrorKind(*failureKind)
	}
	if failureReason != nil {
		job.FailureReason = *failureReason
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &job.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = &model.CompressionResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}

	return &job, nil
}

// encodeJSONColumns marshals the JSONB columns. A nil result stays NULL.
func encodeJSONColumns(job *model.Job) (options, result []byte, err error) {
	options, err = json.Marshal(job.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("encode options: %w", err)
	}
	if job.Result != nil {
		result, err = json.Marshal(job.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("encode result: %w", err)
		}
	}
	return options, result, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
