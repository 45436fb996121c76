package tree

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// Keys of the node information bag.
const (
	InfoPipeline = "pipeline"
	InfoSource   = "source"
	InfoModTime  = "mtime"
)

// ContentProducer supplies the source content of a node.
type ContentProducer interface {
	Content() ([]byte, error)
}

// ProducerFunc adapts a function to ContentProducer.
type ProducerFunc func() ([]byte, error)

func (f ProducerFunc) Content() ([]byte, error) { return f() }

// PathContent produces the content behind a source path.
func PathContent(p *sitepath.Path) ContentProducer {
	return ProducerFunc(p.Data)
}

// Node is one element of the output tree. The parent pointer is a back
// reference; nodes are owned by their parent's children map.
type Node struct {
	parent   *Node
	children map[string]*Node // keyed by LCN

	path     *sitepath.Path
	id       sitepath.Identity
	producer ContentProducer
	virtual  bool

	mu   sync.RWMutex
	meta map[string]any
	dest string
	info map[string]any
}

func newNode(parent *Node, p *sitepath.Path, producer ContentProducer, virtual bool) *Node {
	return &Node{
		parent:   parent,
		children: map[string]*Node{},
		path:     p,
		id:       p.Derive(),
		producer: producer,
		virtual:  virtual,
		meta:     p.Meta(),
		info:     map[string]any{},
	}
}

func (n *Node) ALCN() string { return n.id.ALCN }
func (n *Node) ACN() string  { return n.id.ACN }
func (n *Node) CN() string   { return n.id.CN }
func (n *Node) LCN() string  { return n.id.LCN }
func (n *Node) Lang() string { return n.path.Lang() }

// Path returns the source path the node was created from.
func (n *Node) Path() *sitepath.Path { return n.path }

func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Virtual reports whether the node exists only to provide structure.
func (n *Node) Virtual() bool { return n.virtual }

// IsDirectory reports whether the node represents a directory.
func (n *Node) IsDirectory() bool { return n.path.IsDirectory() }

// IsFragment reports whether the node is a fragment of its parent.
func (n *Node) IsFragment() bool { return n.path.IsFragment() }

// Producer returns the content producer, nil for virtual nodes.
func (n *Node) Producer() ContentProducer { return n.producer }

// Content returns the source content. Nodes without a producer have none.
func (n *Node) Content() ([]byte, error) {
	if n.producer == nil {
		return nil, nil
	}
	return n.producer.Content()
}

// Get returns a meta value.
func (n *Node) Get(key string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.meta[key]
	return v, ok
}

// GetString returns a string meta value or "".
func (n *Node) GetString(key string) string {
	v, _ := n.Get(key)
	s, _ := v.(string)
	return s
}

// GetBool returns a boolean meta value or false.
func (n *Node) GetBool(key string) bool {
	v, _ := n.Get(key)
	b, _ := v.(bool)
	return b
}

// Set stores a meta value.
func (n *Node) Set(key string, value any) {
	n.mu.Lock()
	n.meta[key] = value
	n.mu.Unlock()
}

// Meta returns a copy of the resolved meta information.
func (n *Node) Meta() map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return maps.Clone(n.meta)
}

func (n *Node) mergeMeta(meta map[string]any) {
	n.mu.Lock()
	maps.Copy(n.meta, meta)
	n.mu.Unlock()
}

// Title returns the meta title or the humanized basename.
func (n *Node) Title() string {
	if t := n.GetString(sitepath.MetaTitle); t != "" {
		return t
	}
	return sitepath.Humanize(n.path.Basename())
}

// Info returns processing information attached to the node (pipeline,
// source reference). It is not part of the tracked meta information.
func (n *Node) Info(key string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.info[key]
	return v, ok
}

// SetInfo stores processing information.
func (n *Node) SetInfo(key string, value any) {
	n.mu.Lock()
	n.info[key] = value
	n.mu.Unlock()
}

// ModTime returns the modification time recorded under InfoModTime.
func (n *Node) ModTime() time.Time {
	v, _ := n.Info(InfoModTime)
	t, _ := v.(time.Time)
	return t
}

// SetDest sets the output location (or external URL) of the node.
func (n *Node) SetDest(dest string) {
	n.mu.Lock()
	n.dest = dest
	n.mu.Unlock()
}

// DestPath returns the output location; it defaults to the ALCN.
func (n *Node) DestPath() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.dest != "" {
		return n.dest
	}
	return n.id.ALCN
}

// IsExternal reports whether the destination is an absolute URL.
func (n *Node) IsExternal() bool {
	return IsExternalURL(n.DestPath())
}

// Child returns the direct child with the given LCN.
func (n *Node) Child(lcn string) *Node { return n.children[lcn] }

// Children returns the direct children ordered by sort index, then LCN.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	slices.SortFunc(out, compareSiblings)
	return out
}

func compareSiblings(a, b *Node) int {
	ai, aok := a.path.SortIndex()
	bi, bok := b.path.SortIndex()
	switch {
	case aok && bok && ai != bi:
		if ai < bi {
			return -1
		}
		return 1
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	}
	return strings.Compare(a.id.LCN, b.id.LCN)
}

// IsExternalURL reports whether s carries a URL scheme such as "https:".
func IsExternalURL(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return false
	}
	for i, r := range s[:colon] {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isAlpha && (i == 0 || !(r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.')) {
			return false
		}
	}
	return true
}
