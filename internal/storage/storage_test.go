package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "empty backend must read as nil")

	require.NoError(t, b.Write(ctx, []byte("first")))
	data, err = b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	require.NoError(t, b.Write(ctx, []byte("second")))
	data, err = b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFSBackendMemfs(t *testing.T) {
	fs := memfs.New()
	b := NewFSBackend(fs, ".sitegen/cache.msgpack")
	exerciseBackend(t, b)

	// Only the target file remains after the rename.
	entries, err := fs.ReadDir(".sitegen")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache.msgpack", entries[0].Name())

	require.NoError(t, b.Close())
	_, err = b.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFSBackendOSFS(t *testing.T) {
	dir := t.TempDir()
	exerciseBackend(t, NewFSBackend(osfs.New(dir), "cache.msgpack"))
	assert.FileExists(t, filepath.Join(dir, "cache.msgpack"))
}

func TestFSBackendHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewFSBackend(memfs.New(), "cache")
	assert.ErrorIs(t, b.Write(ctx, []byte("x")), context.Canceled)
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ts, err := b.UpdatedAt(context.Background())
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	exerciseBackend(t, b)

	ts, err = b.UpdatedAt(context.Background())
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestSQLiteBackendPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Write(context.Background(), []byte("kept")))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	data, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	exerciseBackend(t, b)
	assert.Equal(t, 2, b.Writes())

	b.FailWrite = errors.New("disk full")
	assert.Error(t, b.Write(context.Background(), []byte("x")))
	assert.Equal(t, 2, b.Writes())
}
