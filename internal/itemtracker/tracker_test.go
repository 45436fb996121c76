package itemtracker

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

type source struct {
	raw  string
	meta map[string]any
	body string
}

func buildTree(t *testing.T, sources ...source) *tree.Tree {
	t.Helper()
	tr := tree.New()
	for _, s := range sources {
		p, err := sitepath.Parse(s.raw, s.meta)
		require.NoError(t, err)
		body := s.body
		_, err = tr.Insert(p, tree.ProducerFunc(func() ([]byte, error) { return []byte(body), nil }))
		require.NoError(t, err)
	}
	return tr
}

// run simulates one generation: every node is checked, the changed ones are
// processed and record their own content and meta. refs maps a node to the
// nodes it links to.
func run(t *testing.T, previous *cache.Snapshot, tr *tree.Tree, refs map[string][]string) (*cache.Snapshot, map[string]bool) {
	t.Helper()
	it := New()
	require.NoError(t, RegisterBuiltins(it, tr, nil, nil))
	it.Start(previous)

	changed := map[string]bool{}
	for _, n := range tr.Nodes() {
		if n.Virtual() {
			continue
		}
		changed[n.ALCN()] = it.NodeChanged(n)
		if !changed[n.ALCN()] {
			continue
		}
		it.StartNode(n)
		require.NoError(t, it.Add(n, NodeContent, n))
		require.NoError(t, it.Add(n, NodeMetaInfo, n))
		for _, target := range refs[n.ALCN()] {
			require.NoError(t, it.Add(n, NodeReference, target))
		}
	}
	return cache.Merge(previous, it.Current()), changed
}

func TestFirstRunMarksEverythingChanged(t *testing.T) {
	tr := buildTree(t, source{raw: "/a.md", body: "a"}, source{raw: "/b.md", body: "b"})
	_, changed := run(t, cache.NewSnapshot(), tr, nil)
	assert.Equal(t, map[string]bool{"/a.md": true, "/b.md": true}, changed)
}

func TestUnmodifiedSecondRunIsClean(t *testing.T) {
	sources := []source{{raw: "/a.md", meta: map[string]any{"title": "A"}, body: "a"}, {raw: "/b.md", body: "b"}}
	snap, _ := run(t, cache.NewSnapshot(), buildTree(t, sources...), map[string][]string{"/a.md": {"/b.md"}})
	_, changed := run(t, snap, buildTree(t, sources...), nil)
	assert.Equal(t, map[string]bool{"/a.md": false, "/b.md": false}, changed)
}

func TestMetaChangeMarksNodeChanged(t *testing.T) {
	tr := buildTree(t, source{raw: "/x.html", meta: map[string]any{"title": "Old"}, body: "x"})
	x := tr.Node("/x.html")
	require.NotNil(t, x)

	it := New()
	require.NoError(t, RegisterBuiltins(it, tr, nil, nil))
	it.Start(nil)
	require.NoError(t, it.Add(x, NodeContent, x))
	require.NoError(t, it.Add(x, NodeMetaInfo, x))
	snap := cache.Merge(nil, it.Current())

	tr2 := buildTree(t, source{raw: "/x.html", meta: map[string]any{"title": "New"}, body: "x"})
	it2 := New()
	require.NoError(t, RegisterBuiltins(it2, tr2, nil, nil))
	it2.Start(snap)
	assert.True(t, it2.NodeChanged(tr2.Node("/x.html")))
	assert.True(t, it2.ItemChanged(cache.ItemUID{Tracker: NodeMetaInfo, ID: "/x.html"}))
	assert.False(t, it2.ItemChanged(cache.ItemUID{Tracker: NodeContent, ID: "/x.html"}))
}

func TestReferencePropagatesOneLevelOnly(t *testing.T) {
	refs := map[string][]string{"/a.md": {"/b.md"}, "/c.md": {"/a.md"}}
	first := []source{{raw: "/a.md", body: "a"}, {raw: "/b.md", body: "b"}, {raw: "/c.md", body: "c"}}
	snap, _ := run(t, cache.NewSnapshot(), buildTree(t, first...), refs)

	second := []source{{raw: "/a.md", body: "a"}, {raw: "/b.md", body: "b changed"}, {raw: "/c.md", body: "c"}}
	_, changed := run(t, snap, buildTree(t, second...), refs)
	assert.True(t, changed["/b.md"], "own content changed")
	assert.True(t, changed["/a.md"], "explicit reference to a changed node")
	assert.False(t, changed["/c.md"], "staleness is not transitive")
}

func TestReferenceToVanishedNode(t *testing.T) {
	refs := map[string][]string{"/a.md": {"/b.md"}}
	snap, _ := run(t, cache.NewSnapshot(), buildTree(t, source{raw: "/a.md", body: "a"}, source{raw: "/b.md", body: "b"}), refs)
	fp, ok := snap.Fingerprint(cache.ItemUID{Tracker: NodeReference, ID: "/b.md"})
	require.True(t, ok)
	assert.NotEqual(t, Missing, fp)

	_, changed := run(t, snap, buildTree(t, source{raw: "/a.md", body: "a"}), refs)
	assert.True(t, changed["/a.md"])
}

func TestAddComputesFingerprintOncePerRun(t *testing.T) {
	calls := 0
	tr := buildTree(t, source{raw: "/a.md", body: "a"})
	it := New()
	require.NoError(t, it.Register("counting", countingTracker{calls: &calls}))
	a := tr.Node("/a.md")
	require.NoError(t, it.Add(a, "counting", "k"))
	require.NoError(t, it.Add(a, "counting", "k"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []cache.ItemUID{{Tracker: "counting", ID: "k"}}, it.Current().Dependencies("/a.md"))
}

func TestAddUnknownTracker(t *testing.T) {
	tr := buildTree(t, source{raw: "/a.md", body: "a"})
	err := New().Add(tr.Node("/a.md"), "nope")
	var unknown *UnknownTrackerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	it := New()
	require.NoError(t, it.Register("x", countingTracker{calls: new(int)}))
	assert.Error(t, it.Register("x", countingTracker{calls: new(int)}))
}

func TestUnregisteredTrackerDependencyCountsAsChanged(t *testing.T) {
	prev := cache.NewSnapshot()
	prev.SetFingerprint(cache.ItemUID{Tracker: "gone", ID: "x"}, "fp")
	it := New()
	it.Start(prev)
	assert.True(t, it.ItemChanged(cache.ItemUID{Tracker: "gone", ID: "x"}))
}

func TestFileTracker(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "data/info.yaml", []byte("a: 1"), 0o644))
	tracker := NewFileTracker(fs)

	id, err := tracker.ItemID("data/info.yaml")
	require.NoError(t, err)
	fp, err := tracker.ItemData("data/info.yaml")
	require.NoError(t, err)
	assert.False(t, tracker.Changed(id, fp))

	require.NoError(t, util.WriteFile(fs, "data/info.yaml", []byte("a: 12345"), 0o644))
	assert.True(t, tracker.Changed(id, fp))

	require.NoError(t, fs.Remove("data/info.yaml"))
	missing, err := tracker.ItemData("data/info.yaml")
	require.NoError(t, err)
	assert.Equal(t, Missing, missing)

	_, err = tracker.ItemID(42)
	assert.Error(t, err)
}

func TestConfigTracker(t *testing.T) {
	values := map[string]any{"generation.default_lang": "en"}
	tracker := NewConfigTracker(func(k string) (any, bool) {
		v, ok := values[k]
		return v, ok
	})
	fp, err := tracker.ItemData("generation.default_lang")
	require.NoError(t, err)
	assert.False(t, tracker.Changed("generation.default_lang", fp))

	values["generation.default_lang"] = "de"
	assert.True(t, tracker.Changed("generation.default_lang", fp))

	fp, err = tracker.ItemData("unknown")
	require.NoError(t, err)
	assert.Equal(t, Missing, fp)
}

func TestRegisterBuiltinsHonorsDisabled(t *testing.T) {
	it := New()
	require.NoError(t, RegisterBuiltins(it, tree.New(), memfs.New(), nil, NodeReference, File))
	_, ok := it.Tracker(NodeReference)
	assert.False(t, ok)
	_, ok = it.Tracker(File)
	assert.False(t, ok)
	_, ok = it.Tracker(NodeContent)
	assert.True(t, ok)
	_, ok = it.Tracker(Config)
	assert.False(t, ok, "no config lookup given")
}

type countingTracker struct {
	calls *int
}

func (c countingTracker) ItemID(args ...any) (string, error) { return args[0].(string), nil }

func (c countingTracker) ItemData(...any) (cache.Fingerprint, error) {
	*c.calls++
	return "fp", nil
}

func (c countingTracker) Changed(string, cache.Fingerprint) bool { return false }

func TestInvalidatedNodeIsProcessedAgain(t *testing.T) {
	sources := []source{{raw: "/a.md", body: "a"}, {raw: "/b.md", body: "b"}}
	snap, _ := run(t, cache.NewSnapshot(), buildTree(t, sources...), nil)

	tr := buildTree(t, sources...)
	it := New()
	require.NoError(t, RegisterBuiltins(it, tr, nil, nil))
	it.Start(snap)
	a := tr.Node("/a.md")
	require.False(t, it.NodeChanged(a))
	it.Invalidate(a)
	assert.Equal(t, []cache.ItemUID{{Tracker: Invalidated, ID: "/a.md"}}, it.Current().Dependencies("/a.md"))

	merged := cache.Merge(snap, it.Current())
	_, changed := run(t, merged, buildTree(t, sources...), nil)
	assert.Equal(t, map[string]bool{"/a.md": true, "/b.md": false}, changed)
}
