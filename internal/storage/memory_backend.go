package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps the blob in memory. It is used by tests and by
// one-shot runs that should not persist anything.
type MemoryBackend struct {
	mu     sync.Mutex
	data   []byte
	writes int

	// FailWrite, when set, is returned by Write.
	FailWrite error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Read(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data), nil
}

func (m *MemoryBackend) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrite != nil {
		return m.FailWrite
	}
	m.data = slices.Clone(data)
	m.writes++
	return nil
}

// Writes returns how many successful writes happened.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryBackend) Close() error { return nil }
