// Package localfs provides the local file operations used around an encode.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/disk"
)

// FileSystem is the subset of file operations the compression service needs.
type FileSystem interface {
	// Size returns the size of the file at path in bytes.
	Size(path string) (int64, error)
	// Remove deletes the file at path. Missing files are not an error.
	Remove(path string) error
	// FreeSpace returns the bytes available to unprivileged users on the
	// volume containing dir.
	FreeSpace(ctx context.Context, dir string) (uint64, error)
}

type osFileSystem struct{}

// Compile-time verification that osFileSystem implements FileSystem.
var _ FileSystem = (*osFileSystem)(nil)

// New returns a FileSystem backed by the operating system.
func New() FileSystem {
	return &osFileSystem{}
}

func (fs *osFileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func (fs *osFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (fs *osFileSystem) FreeSpace(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", dir, err)
	}
	return usage.Free, nil
}
