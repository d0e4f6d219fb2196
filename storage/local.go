package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local is a Storage backed directly by the local filesystem: the default
// implementation for the simple, single-machine orchestrator path, where
// "object storage" is just a tmp directory tree. A distributed deployment
// swaps this for an object-store-backed Storage without the orchestrator
// needing to change.
type Local struct{}

// NewLocal returns a filesystem-backed Storage.
func NewLocal() Local { return Local{} }

func (Local) Mkdir(_ context.Context, path string) error {
	return os.MkdirAll(path, 0o755)
}

func (Local) Rmdir(_ context.Context, path string) error {
	return os.RemoveAll(path)
}

// Put copies localPath into remoteDir, creating remoteDir if necessary.
func (Local) Put(_ context.Context, localPath, remoteDir string) error {
	if err := os.MkdirAll(remoteDir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %q: %w", remoteDir, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: open %q: %w", localPath, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(remoteDir, filepath.Base(localPath)))
	if err != nil {
		return fmt.Errorf("storage: create destination for %q: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("storage: copy %q: %w", localPath, err)
	}
	return nil
}
