package repository

import (
	"context"

	"github.com/google/uuid"
)

// CompressTask is the queue message that asks a worker to run a job.
type CompressTask struct {
	JobID      uuid.UUID `json:"job_id"`
	SourceKey  string    `json:"source_key"`
	OutputKey  string    `json:"output_key"`
	RetryCount int       `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishCompressTask sends a compression task to the queue.
	PublishCompressTask(ctx context.Context, task CompressTask) error

	// ConsumeCompressTasks consumes tasks until ctx is cancelled.
	// A handler error causes the task to be redelivered with RetryCount
	// incremented; nil acknowledges it.
	ConsumeCompressTasks(ctx context.Context, handler func(task CompressTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
