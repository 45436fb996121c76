package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// FSBackend stores the blob as a single file on a billy filesystem.
// Writes go to a temporary file in the same directory that is then renamed
// over the target, so readers never observe a partial blob.
type FSBackend struct {
	fs     billy.Filesystem
	name   string
	mu     sync.Mutex
	closed bool
}

// NewFSBackend creates a backend writing to name inside fs.
func NewFSBackend(fs billy.Filesystem, name string) *FSBackend {
	return &FSBackend{fs: fs, name: name}
}

func (b *FSBackend) Name() string { return "fs" }

// Read returns the stored blob.
func (b *FSBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	data, err := util.ReadFile(b.fs, b.name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.name, err)
	}
	return data, nil
}

// Write replaces the stored blob via write-then-rename.
func (b *FSBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	dir := filepath.Dir(b.name)
	if dir != "." {
		if err := b.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmp, err := b.fs.TempFile(dir, "."+filepath.Base(b.name)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = b.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := b.fs.Rename(tmpName, b.name); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Close marks the backend closed. The filesystem itself is not owned.
func (b *FSBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
