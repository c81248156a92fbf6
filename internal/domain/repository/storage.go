package repository

import (
	"context"
	"time"
)

// ObjectStorage defines the interface for object storage operations.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// GeneratePresignedUploadURL creates a presigned URL the client uploads
	// the source video to.
	GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a presigned URL for fetching a
	// compressed output.
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// DownloadFile writes the object at key to localPath.
	// Returns ErrObjectNotFound if the object does not exist.
	DownloadFile(ctx context.Context, key, localPath string) error

	// UploadFile stores the file at localPath under key and returns the
	// uploaded size in bytes.
	UploadFile(ctx context.Context, key, localPath, contentType string) (int64, error)

	// Stat returns object metadata.
	// Returns ErrObjectNotFound if the object does not exist.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Delete removes an object from the storage.
	Delete(ctx context.Context, key string) error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}
