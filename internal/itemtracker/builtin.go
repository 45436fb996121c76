package itemtracker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// Names of the built-in trackers.
const (
	NodeContent   = "node_content"
	NodeMetaInfo  = "node_meta_info"
	NodeReference = "node_reference"
	File          = "file"
	Config        = "config"
)

// Missing is the fingerprint of a referenced item that no longer exists.
const Missing cache.Fingerprint = "missing"

// NodeLookup finds nodes of the current tree by ALCN. *tree.Tree implements it.
type NodeLookup interface {
	Node(alcn string) *tree.Node
}

var errWantNode = errors.New("expected a *tree.Node argument")

func nodeArg(args []any) (*tree.Node, error) {
	if len(args) != 1 {
		return nil, errWantNode
	}
	n, ok := args[0].(*tree.Node)
	if !ok || n == nil {
		return nil, errWantNode
	}
	return n, nil
}

func stringArg(args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one string argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("expected a string argument, got %T", args[0])
	}
	return s, nil
}

// ContentFingerprint fingerprints the source of n: its meta block and body,
// plus the modification time when the source reported one.
func ContentFingerprint(n *tree.Node) (cache.Fingerprint, error) {
	if n.Producer() == nil {
		return "virtual", nil
	}
	data, err := n.Content()
	if err != nil {
		return "", err
	}
	block, err := frontmatter.Parse(data)
	if err != nil {
		// Unparseable blocks still fingerprint; the body is the whole source.
		block = &frontmatter.Block{Meta: map[string]any{}, Body: data}
	}
	fp, err := frontmatter.Fingerprint(block.Meta, block.Body)
	if err != nil {
		return "", err
	}
	if mt := n.ModTime(); !mt.IsZero() {
		fp += "@" + strconv.FormatInt(mt.UnixNano(), 10)
	}
	return cache.Fingerprint(fp), nil
}

// MetaFingerprint fingerprints the canonical YAML form of the node meta.
func MetaFingerprint(n *tree.Node) (cache.Fingerprint, error) {
	out, err := frontmatter.SerializeYAML(n.Meta())
	if err != nil {
		return "", err
	}
	fp, err := frontmatter.Fingerprint(nil, out)
	return cache.Fingerprint(fp), err
}

// nodeTracker tracks a property of a node identified by its ALCN.
type nodeTracker struct {
	nodes NodeLookup
	data  func(*tree.Node) (cache.Fingerprint, error)
}

func (t nodeTracker) ItemID(args ...any) (string, error) {
	n, err := nodeArg(args)
	if err != nil {
		return "", err
	}
	return n.ALCN(), nil
}

func (t nodeTracker) ItemData(args ...any) (cache.Fingerprint, error) {
	n, err := nodeArg(args)
	if err != nil {
		return "", err
	}
	return t.data(n)
}

func (t nodeTracker) Changed(id string, old cache.Fingerprint) bool {
	n := t.nodes.Node(id)
	if n == nil {
		return true
	}
	fp, err := t.data(n)
	return err != nil || fp != old
}

// NewNodeContentTracker tracks node sources.
func NewNodeContentTracker(nodes NodeLookup) Tracker {
	return nodeTracker{nodes: nodes, data: ContentFingerprint}
}

// NewNodeMetaInfoTracker tracks node meta information.
func NewNodeMetaInfoTracker(nodes NodeLookup) Tracker {
	return nodeTracker{nodes: nodes, data: MetaFingerprint}
}

// referenceTracker tracks what a link to a node depends on: where the node
// is written and what it contains. A vanished node fingerprints as Missing.
type referenceTracker struct {
	nodes NodeLookup
}

// NewNodeReferenceTracker tracks references to other nodes.
func NewNodeReferenceTracker(nodes NodeLookup) Tracker {
	return referenceTracker{nodes: nodes}
}

func (t referenceTracker) ItemID(args ...any) (string, error) {
	if len(args) == 1 {
		if alcn, ok := args[0].(string); ok {
			return alcn, nil
		}
	}
	n, err := nodeArg(args)
	if err != nil {
		return "", err
	}
	return n.ALCN(), nil
}

func (t referenceTracker) ItemData(args ...any) (cache.Fingerprint, error) {
	id, err := t.ItemID(args...)
	if err != nil {
		return "", err
	}
	return t.fingerprint(id)
}

func (t referenceTracker) fingerprint(alcn string) (cache.Fingerprint, error) {
	n := t.nodes.Node(alcn)
	if n == nil {
		return Missing, nil
	}
	content, err := ContentFingerprint(n)
	if err != nil {
		return "", err
	}
	return cache.Fingerprint(n.DestPath()+"|") + content, nil
}

func (t referenceTracker) Changed(id string, old cache.Fingerprint) bool {
	fp, err := t.fingerprint(id)
	return err != nil || fp != old
}

// fileTracker tracks external files by modification time and size.
type fileTracker struct {
	fs billy.Basic
}

// NewFileTracker tracks files of fs.
func NewFileTracker(fs billy.Basic) Tracker {
	return fileTracker{fs: fs}
}

func (t fileTracker) ItemID(args ...any) (string, error) {
	return stringArg(args)
}

func (t fileTracker) ItemData(args ...any) (cache.Fingerprint, error) {
	name, err := stringArg(args)
	if err != nil {
		return "", err
	}
	return t.fingerprint(name)
}

func (t fileTracker) fingerprint(name string) (cache.Fingerprint, error) {
	fi, err := t.fs.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return "", err
	}
	return cache.Fingerprint(fi.ModTime().UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatInt(fi.Size(), 10)), nil
}

func (t fileTracker) Changed(id string, old cache.Fingerprint) bool {
	fp, err := t.fingerprint(id)
	return err != nil || fp != old
}

// ConfigLookup returns the configuration value stored under key.
type ConfigLookup func(key string) (any, bool)

// configTracker tracks configuration values.
type configTracker struct {
	lookup ConfigLookup
}

// NewConfigTracker tracks configuration values found through lookup.
func NewConfigTracker(lookup ConfigLookup) Tracker {
	return configTracker{lookup: lookup}
}

func (t configTracker) ItemID(args ...any) (string, error) {
	return stringArg(args)
}

func (t configTracker) ItemData(args ...any) (cache.Fingerprint, error) {
	key, err := stringArg(args)
	if err != nil {
		return "", err
	}
	return t.fingerprint(key)
}

func (t configTracker) fingerprint(key string) (cache.Fingerprint, error) {
	v, ok := t.lookup(key)
	if !ok {
		return Missing, nil
	}
	out, err := frontmatter.SerializeYAML(map[string]any{"value": v})
	if err != nil {
		return "", err
	}
	return cache.Fingerprint(out), nil
}

func (t configTracker) Changed(id string, old cache.Fingerprint) bool {
	fp, err := t.fingerprint(id)
	return err != nil || fp != old
}

// RegisterBuiltins registers the built-in trackers except those named in
// disabled. node_content and node_meta_info cannot be disabled.
func RegisterBuiltins(it *ItemTracker, nodes NodeLookup, files billy.Basic, cfg ConfigLookup, disabled ...string) error {
	skip := map[string]bool{}
	for _, name := range disabled {
		skip[name] = true
	}
	all := []struct {
		name    string
		tracker Tracker
		enabled bool
	}{
		{NodeContent, NewNodeContentTracker(nodes), true},
		{NodeMetaInfo, NewNodeMetaInfoTracker(nodes), true},
		{NodeReference, NewNodeReferenceTracker(nodes), !skip[NodeReference]},
		{File, NewFileTracker(files), files != nil && !skip[File]},
		{Config, NewConfigTracker(cfg), cfg != nil && !skip[Config]},
	}
	for _, b := range all {
		if !b.enabled {
			continue
		}
		if err := it.Register(b.name, b.tracker); err != nil {
			return err
		}
	}
	return nil
}
