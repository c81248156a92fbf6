package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystem_Size(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "out.mp4")
	if err := os.WriteFile(path, make([]byte, 1234), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	got, err := fs.Size(path)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if got != 1234 {
		t.Errorf("Size() = %d, want 1234", got)
	}

	if _, err := fs.Size(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileSystem_Remove(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "partial.mp4")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove")
	}
	if err := fs.Remove(path); err != nil {
		t.Errorf("Remove() of missing file error = %v, want nil", err)
	}
}

func TestFileSystem_FreeSpace(t *testing.T) {
	free, err := New().FreeSpace(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpace() error = %v", err)
	}
	if free == 0 {
		t.Error("FreeSpace() = 0, want available bytes")
	}
}
