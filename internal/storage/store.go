// Package storage provides the persistence backends for the generation cache.
//
// A Backend stores one opaque blob. It is read once before a run and written
// once after it, so implementations favor atomic replacement over
// incremental updates.
package storage

import (
	"context"
	"errors"
)

// Backend reads and writes the persisted cache blob.
type Backend interface {
	// Read returns the stored blob, or nil and no error when nothing was
	// persisted yet.
	Read(ctx context.Context) ([]byte, error)

	// Write atomically replaces the stored blob.
	Write(ctx context.Context, data []byte) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage backend closed")
