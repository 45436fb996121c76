package contentproc

import (
	"log/slog"
	"maps"
	"slices"

	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// DependencyTracker records what a node depends on while it is processed.
// *itemtracker.ItemTracker implements it.
type DependencyTracker interface {
	Add(node *tree.Node, tracker string, args ...any) error
}

// Context is the rendering state a pipeline threads through its processors.
type Context struct {
	Content []byte
	// Node is the node whose content is processed.
	Node *tree.Node
	// Dest is the node being written; nil means Node.
	Dest    *tree.Node
	Tree    *tree.Tree
	Tracker DependencyTracker
	Meta    map[string]any
	Logger  *slog.Logger
}

// DestNode returns Dest, falling back to Node.
func (c *Context) DestNode() *tree.Node {
	if c.Dest != nil {
		return c.Dest
	}
	return c.Node
}

// Clone copies the context; content and meta are copied too.
func (c *Context) Clone() *Context {
	out := *c
	out.Content = slices.Clone(c.Content)
	out.Meta = maps.Clone(c.Meta)
	return &out
}

func (c *Context) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Context) nodeName() string {
	if c.Node == nil {
		return ""
	}
	return c.Node.ALCN()
}
