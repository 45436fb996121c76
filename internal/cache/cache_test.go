package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

var (
	contentA = ItemUID{Tracker: "node_content", ID: "/a.html"}
	metaA    = ItemUID{Tracker: "node_meta_info", ID: "/a.html"}
	contentB = ItemUID{Tracker: "node_content", ID: "/b.html"}
)

func sample() *Snapshot {
	s := NewSnapshot()
	s.AddDependency("/a.html", contentA)
	s.AddDependency("/a.html", metaA)
	s.AddDependency("/b.html", contentB)
	s.SetFingerprint(contentA, "a1")
	s.SetFingerprint(metaA, "m1")
	s.SetFingerprint(contentB, "b1")
	return s
}

func TestMergeReplacesPerKeyAndRetainsUntouched(t *testing.T) {
	previous := sample()
	current := NewSnapshot()
	current.ResetNode("/a.html")
	current.AddDependency("/a.html", contentA)
	current.SetFingerprint(contentA, "a2")

	merged := Merge(previous, current)

	assert.Equal(t, []ItemUID{contentA}, merged.Dependencies("/a.html"), "dependency set is replaced, not unioned")
	assert.Equal(t, []ItemUID{contentB}, merged.Dependencies("/b.html"))
	fp, _ := merged.Fingerprint(contentA)
	assert.Equal(t, Fingerprint("a2"), fp)
	fp, _ = merged.Fingerprint(metaA)
	assert.Equal(t, Fingerprint("m1"), fp, "untouched fingerprint retained")

	// Inputs stay untouched.
	fp, _ = previous.Fingerprint(contentA)
	assert.Equal(t, Fingerprint("a1"), fp)
	assert.Len(t, previous.Dependencies("/a.html"), 2)
}

func TestMergeWithNilInputs(t *testing.T) {
	assert.True(t, Merge(nil, nil).IsEmpty())
	assert.Equal(t, sample().Stats(), Merge(nil, sample()).Stats())
	assert.Equal(t, sample().Stats(), Merge(sample(), nil).Stats())
}

func TestPrune(t *testing.T) {
	s := sample()
	removed := s.Prune(func(alcn string) bool { return alcn == "/a.html" })
	assert.Equal(t, 1, removed)
	assert.False(t, s.HasNode("/b.html"))
	_, ok := s.Fingerprint(contentB)
	assert.False(t, ok)
	_, ok = s.Fingerprint(contentA)
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	st := sample().Stats()
	assert.Equal(t, 2, st.Nodes)
	assert.Equal(t, 3, st.Items)
	assert.Equal(t, 3, st.Dependencies)
	assert.Equal(t, map[string]int{"node_content": 2, "node_meta_info": 1}, st.ByTracker)
}

func TestCodecRoundTripIsDeterministic(t *testing.T) {
	first, err := Encode(sample())
	require.NoError(t, err)
	second, err := Encode(sample())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	decoded, err := Decode(first)
	require.NoError(t, err)
	assert.Equal(t, sample(), decoded)
}

func TestDecodeRejectsOtherVersions(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeUint16(FormatVersion+1))
	require.NoError(t, enc.Encode(map[string]string{"x": "y"}))

	_, err := Decode(buf.Bytes())
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestStoreLoadEmpty(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend())
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	store := NewStore(storage.NewFSBackend(fs, ".sitegen/cache.msgpack"))

	current := sample()
	merged, err := store.Save(ctx, NewSnapshot(), current)
	require.NoError(t, err)
	assert.Equal(t, current, merged)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, current, loaded)
}

func TestStoreLoadCorruptBlobIsEmpty(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "cache", []byte("not msgpack at all"), 0o644))
	store := NewStore(storage.NewFSBackend(fs, "cache"))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestStoreSaveFailureIsCacheError(t *testing.T) {
	backend := storage.NewMemoryBackend()
	backend.FailWrite = errors.New("disk full")
	store := NewStore(backend)

	_, err := store.Save(context.Background(), NewSnapshot(), sample())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCache))
	assert.Equal(t, 0, backend.Writes())
}
