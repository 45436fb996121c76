// Package tree holds the node graph built from source paths and answers
// lookup, routing and subtree questions about it.
package tree

import (
	"fmt"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// MetaVirtual forces a node to be virtual when set to true.
const MetaVirtual = "virtual"

// DuplicateNodeError reports two content sources for the same ALCN.
type DuplicateNodeError struct {
	ALCN string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %s is already provided by another source", e.ALCN)
}

func (e *DuplicateNodeError) Category() ferrors.ErrorCategory { return ferrors.CategoryBuild }

// Tree owns all nodes of one generation run.
//
// Insert may be called concurrently. Lookups during rendering assume the
// structure is no longer changing.
type Tree struct {
	mu     sync.RWMutex
	root   *Node
	byALCN map[string]*Node
	byACN  map[string][]*Node
	opts   []sitepath.Option
}

// New creates a tree with a virtual root directory.
func New(opts ...sitepath.Option) *Tree {
	root := newNode(nil, sitepath.MustParse("/", nil, opts...), nil, true)
	return &Tree{
		root:   root,
		byALCN: map[string]*Node{"/": root},
		byACN:  map[string][]*Node{"/": {root}},
		opts:   opts,
	}
}

func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byALCN)
}

// Node returns the node with the given ALCN or nil.
func (t *Tree) Node(alcn string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byALCN[alcn]
}

// Insert creates or augments the node for p, creating virtual intermediate
// nodes for missing parents. Directories inserted explicitly are real nodes;
// other paths without a producer, or with meta "virtual: true", are virtual.
// A second insertion of the same ALCN merges meta and may attach content to
// a virtual node, but two producers for one ALCN are rejected.
func (t *Tree) Insert(p *sitepath.Path, producer ContentProducer) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	virtual := producer == nil && !p.IsDirectory()
	if v, ok := p.Get(MetaVirtual); ok {
		if b, isBool := v.(bool); isBool {
			virtual = b
		}
	}
	return t.insertLocked(p, producer, virtual)
}

func (t *Tree) insertLocked(p *sitepath.Path, producer ContentProducer, virtual bool) (*Node, error) {
	alcn := p.ALCN()
	if existing, ok := t.byALCN[alcn]; ok {
		return existing, t.augment(existing, p, producer, virtual)
	}

	parent, err := t.ensureParentLocked(p)
	if err != nil {
		return nil, err
	}

	n := newNode(parent, p, producer, virtual)
	parent.children[n.id.LCN] = n
	t.byALCN[alcn] = n
	t.byACN[n.id.ACN] = append(t.byACN[n.id.ACN], n)
	return n, nil
}

func (t *Tree) augment(n *Node, p *sitepath.Path, producer ContentProducer, virtual bool) error {
	if producer != nil {
		if n.producer != nil {
			return &DuplicateNodeError{ALCN: n.id.ALCN}
		}
		n.producer = producer
		n.path = p
	}
	if !virtual {
		n.virtual = false
	}
	n.mergeMeta(p.Meta())
	return nil
}

func (t *Tree) ensureParentLocked(p *sitepath.Path) (*Node, error) {
	parentRaw := p.ParentPath()
	if parentRaw == "" {
		return nil, fmt.Errorf("path %s has no parent", p.Raw())
	}
	pp, err := sitepath.Parse(parentRaw, nil, t.opts...)
	if err != nil {
		return nil, err
	}
	if n, ok := t.byALCN[pp.ALCN()]; ok {
		return n, nil
	}
	return t.insertLocked(pp, nil, true)
}

// Walk visits every node in pre-order; siblings in Children order. Returning
// false from fn skips the subtree of that node.
func (t *Tree) Walk(fn func(*Node) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var visit func(*Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children() {
			visit(c)
		}
	}
	visit(t.root)
}

// Nodes returns all nodes in Walk order.
func (t *Tree) Nodes() []*Node {
	var out []*Node
	t.Walk(func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Resolve finds the node for an absolute ALCN or ACN. Among the language
// variants of an ACN the one in lang wins; otherwise an exact ALCN match, then
// the variant without language, then the variant with the smallest ALCN.
func (t *Tree) Resolve(abs, lang string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	variants := t.byACN[abs]
	if lang != "" {
		for _, v := range variants {
			if v.Lang() == lang {
				return v
			}
		}
	}
	if n := t.byALCN[abs]; n != nil {
		return n
	}

	var first *Node
	for _, v := range variants {
		if v.Lang() == "" {
			return v
		}
		if first == nil || v.ALCN() < first.ALCN() {
			first = v
		}
	}
	return first
}

// LookupByLocal resolves rel relative to from. It understands ".", "..",
// absolute locations, plain segments and "#fragment" references. Directories
// may be named with or without their trailing separator. Unresolvable
// references yield nil.
func (t *Tree) LookupByLocal(from *Node, rel string) *Node {
	if from == nil || rel == "" {
		return nil
	}
	var abs string
	switch {
	case strings.HasPrefix(rel, "#"):
		base, _, _ := strings.Cut(from.ALCN(), "#")
		abs = base + rel
	case from.IsFragment():
		abs = sitepath.Append(from.Path().ParentPath(), rel)
	default:
		abs = sitepath.Append(from.ALCN(), rel)
	}

	if n := t.Resolve(abs, from.Lang()); n != nil {
		return n
	}
	if !strings.HasSuffix(abs, "/") && !strings.Contains(abs, "#") {
		return t.Resolve(abs+"/", from.Lang())
	}
	return nil
}
