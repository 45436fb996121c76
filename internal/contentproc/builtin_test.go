package contentproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/itemtracker"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

type recordedDep struct {
	node    string
	tracker string
	target  string
}

type fakeTracker struct {
	deps []recordedDep
}

func (f *fakeTracker) Add(node *tree.Node, tracker string, args ...any) error {
	target := args[0].(*tree.Node)
	f.deps = append(f.deps, recordedDep{node: node.ALCN(), tracker: tracker, target: target.ALCN()})
	return nil
}

func siteTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr := tree.New()
	for _, raw := range []string{"/index.html", "/docs/a.html", "/docs/b.html", "/img/logo.png"} {
		_, err := tr.Insert(sitepath.MustParse(raw, nil), tree.ProducerFunc(func() ([]byte, error) { return nil, nil }))
		require.NoError(t, err)
	}
	return tr
}

func TestMarkdown(t *testing.T) {
	rc := &Context{Content: []byte("# Hello\n\nworld\n")}
	out, err := NewMarkdown(MarkdownOptions{}).Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>\n<p>world</p>\n", string(out.Content))

	rc = &Context{Content: []byte("# Hello\n")}
	out, err = NewMarkdown(MarkdownOptions{HeadingIDs: true}).Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "<h1 id=\"hello\">Hello</h1>\n", string(out.Content))
}

func TestLinksRelocatesAndRecordsReferences(t *testing.T) {
	tr := siteTree(t)
	a := tr.Node("/docs/a.html")
	require.NotNil(t, a)
	tracker := &fakeTracker{}

	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, MarkdownOptions{}))

	rc := &Context{
		Content: []byte(`<p><a href="b.html#sec">B</a> <img src="/img/logo.png"> <a href="https://example.org/">x</a> <a href="missing.html">m</a> <a href="#top">t</a></p>`),
		Node:    a,
		Tree:    tr,
		Tracker: tracker,
	}
	out, err := r.Run(context.Background(), Links, rc)
	require.NoError(t, err)
	assert.Equal(t,
		`<p><a href="b.html#sec">B</a> <img src="../img/logo.png"/> <a href="https://example.org/">x</a> <a href="missing.html">m</a> <a href="#top">t</a></p>`,
		string(out.Content))
	assert.Equal(t, []recordedDep{
		{node: "/docs/a.html", tracker: ReferenceTracker, target: "/docs/b.html"},
		{node: "/docs/a.html", tracker: ReferenceTracker, target: "/img/logo.png"},
	}, tracker.deps)
}

func TestLinksResolveSourceNames(t *testing.T) {
	tr := siteTree(t)
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, MarkdownOptions{}))

	out, err := r.Execute(context.Background(), []string{Markdown, Links}, &Context{
		Content: []byte("[home](../index.md) and [b](b.md?x=1)\n"),
		Node:    tr.Node("/docs/a.html"),
		Tree:    tr,
	})
	require.NoError(t, err)
	assert.Equal(t, "<p><a href=\"../index.html\">home</a> and <a href=\"b.html?x=1\">b</a></p>\n", string(out.Content))
}

func TestLinksRouteFromDestination(t *testing.T) {
	tr := siteTree(t)
	rc := &Context{
		Content: []byte(`<a href="b.html">b</a>`),
		Node:    tr.Node("/docs/a.html"),
		Dest:    tr.Node("/index.html"),
		Tree:    tr,
	}
	out, err := NewLinks(nil).Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, `<a href="docs/b.html">b</a>`, string(out.Content))
}

func TestLinksKeepFullDocuments(t *testing.T) {
	tr := siteTree(t)
	rc := &Context{
		Content: []byte(`<!DOCTYPE html><html><head><link href="../index.html" rel="home"></head><body><a href="b.html">b</a></body></html>`),
		Node:    tr.Node("/docs/a.html"),
		Tree:    tr,
	}
	out, err := NewLinks(nil).Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t,
		`<!DOCTYPE html><html><head><link href="../index.html" rel="home"/></head><body><a href="b.html">b</a></body></html>`,
		string(out.Content))

	cases := []struct {
		name string
		in   string
		keep []string
	}{
		{
			name: "leading comment",
			in:   "<!-- generated -->\n<!DOCTYPE html><html><head><title>T</title></head><body><a href=\"b.html\">b</a></body></html>",
			keep: []string{"<!-- generated -->", "<!DOCTYPE html>", "<head><title>T</title></head>", "<body><a href=\"b.html\">b</a></body>"},
		},
		{
			name: "byte order mark",
			in:   "\ufeff<!DOCTYPE html><html><head><title>T</title></head><body><p>x</p></body></html>",
			keep: []string{"<!DOCTYPE html>", "<head><title>T</title></head>", "<body><p>x</p></body>"},
		},
		{
			name: "bare head",
			in:   "<head><title>T</title></head><body><p>x</p></body>",
			keep: []string{"<head><title>T</title></head>", "<body><p>x</p></body>"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc := &Context{Content: []byte(tc.in), Node: tr.Node("/docs/a.html"), Tree: tr}
			out, err := NewLinks(nil).Call(context.Background(), rc)
			require.NoError(t, err)
			for _, want := range tc.keep {
				assert.Contains(t, string(out.Content), want)
			}
		})
	}
}

func TestIsFullDocument(t *testing.T) {
	assert.True(t, isFullDocument([]byte("  <!doctype html><p>x</p>")))
	assert.True(t, isFullDocument([]byte("<!-- a --> <!-- b --><HTML><body></body></HTML>")))
	assert.True(t, isFullDocument([]byte("\n<body><p>x</p></body>")))
	assert.False(t, isFullDocument([]byte("<p>x</p>")))
	assert.False(t, isFullDocument([]byte("<!-- note -->text <a href=\"x\">x</a>")))
	assert.False(t, isFullDocument(nil))
}

type disabledTracker struct{}

func (disabledTracker) Add(*tree.Node, string, ...any) error {
	return &itemtracker.UnknownTrackerError{Name: ReferenceTracker}
}

func TestLinksWithoutReferenceTracker(t *testing.T) {
	tr := siteTree(t)
	rc := &Context{
		Content: []byte(`<p><a href="/index.html">home</a></p>`),
		Node:    tr.Node("/docs/a.html"),
		Tree:    tr,
		Tracker: disabledTracker{},
	}
	out, err := NewLinks(nil).Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, `<p><a href="../index.html">home</a></p>`, string(out.Content))
}

func TestCopyPassesThrough(t *testing.T) {
	rc := &Context{Content: []byte{0x89, 'P', 'N', 'G'}}
	out, err := NewCopy().Call(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, rc.Content, out.Content)
}
