// Package itemtracker records which items every node depends on and decides,
// from the previous run's snapshot, whether a node must be processed again.
//
// Items are owned by named trackers. A tracker turns its arguments into an
// item identity and a fingerprint, and later reports whether the item behind
// an identity differs from a recorded fingerprint.
package itemtracker

import (
	"fmt"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// Tracker is the capability a tracker registers under its name.
type Tracker interface {
	ItemID(args ...any) (string, error)
	ItemData(args ...any) (cache.Fingerprint, error)
	Changed(id string, old cache.Fingerprint) bool
}

// UnknownTrackerError is returned when an item names an unregistered tracker.
type UnknownTrackerError struct {
	Name string
}

func (e *UnknownTrackerError) Error() string {
	return fmt.Sprintf("unknown item tracker %q", e.Name)
}

func (e *UnknownTrackerError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }

// ItemTracker holds the previous snapshot (read-only) and accumulates the
// current run's dependencies and fingerprints.
type ItemTracker struct {
	logger *slog.Logger

	mu       sync.Mutex
	trackers map[string]Tracker
	previous *cache.Snapshot
	current  *cache.Snapshot
	changed  map[cache.ItemUID]bool
}

// Option configures an ItemTracker.
type Option func(*ItemTracker)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(it *ItemTracker) {
		if l != nil {
			it.logger = l
		}
	}
}

// New creates a tracker with an empty previous snapshot.
func New(opts ...Option) *ItemTracker {
	it := &ItemTracker{
		logger:   slog.Default(),
		trackers: map[string]Tracker{},
		previous: cache.NewSnapshot(),
		current:  cache.NewSnapshot(),
		changed:  map[cache.ItemUID]bool{},
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Register adds a tracker under name. Names are unique.
func (it *ItemTracker) Register(name string, t Tracker) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if _, dup := it.trackers[name]; dup {
		return fmt.Errorf("item tracker %q already registered", name)
	}
	it.trackers[name] = t
	return nil
}

// Tracker returns the tracker registered under name.
func (it *ItemTracker) Tracker(name string) (Tracker, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	t, ok := it.trackers[name]
	return t, ok
}

// Start begins a run: previous becomes the snapshot staleness is judged
// against and current starts empty.
func (it *ItemTracker) Start(previous *cache.Snapshot) {
	if previous == nil {
		previous = cache.NewSnapshot()
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	it.previous = previous
	it.current = cache.NewSnapshot()
	it.changed = map[cache.ItemUID]bool{}
}

// Previous returns the snapshot of the last run. Callers must not modify it.
func (it *ItemTracker) Previous() *cache.Snapshot {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.previous
}

// Current returns a copy of what this run recorded so far.
func (it *ItemTracker) Current() *cache.Snapshot {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.current.Clone()
}

// StartNode clears the dependencies recorded for node in this run. Call it
// before processing a node so its dependency set reflects only this run.
func (it *ItemTracker) StartNode(node *tree.Node) {
	it.mu.Lock()
	it.current.ResetNode(node.ALCN())
	it.mu.Unlock()
}

// Invalidated is the tracker name of the marker Invalidate records. It is
// never registered, so the marker always counts as changed.
const Invalidated = "invalidated"

// Invalidate replaces the dependencies node recorded in this run with a
// marker that makes the next run process node again. Use it for nodes whose
// processing failed.
func (it *ItemTracker) Invalidate(node *tree.Node) {
	it.mu.Lock()
	defer it.mu.Unlock()
	alcn := node.ALCN()
	it.current.ResetNode(alcn)
	it.current.AddDependency(alcn, cache.ItemUID{Tracker: Invalidated, ID: alcn})
}

// Add records the item tracker computes from args as a dependency of node.
// The fingerprint is computed once per item and run.
func (it *ItemTracker) Add(node *tree.Node, tracker string, args ...any) error {
	t, ok := it.Tracker(tracker)
	if !ok {
		return &UnknownTrackerError{Name: tracker}
	}
	id, err := t.ItemID(args...)
	if err != nil {
		return fmt.Errorf("%s: item identity: %w", tracker, err)
	}
	uid := cache.ItemUID{Tracker: tracker, ID: id}

	it.mu.Lock()
	it.current.AddDependency(node.ALCN(), uid)
	_, known := it.current.Fingerprint(uid)
	it.mu.Unlock()
	if known {
		return nil
	}

	fp, err := t.ItemData(args...)
	if err != nil {
		return fmt.Errorf("%s: item data for %s: %w", tracker, id, err)
	}
	it.mu.Lock()
	it.current.SetFingerprint(uid, fp)
	it.mu.Unlock()
	return nil
}

// NodeChanged reports whether node must be processed again: its content or
// meta information changed, or any item it depended on in the previous run
// changed. Items without a previous fingerprint count as changed. Only the
// previous snapshot is consulted.
func (it *ItemTracker) NodeChanged(node *tree.Node) bool {
	alcn := node.ALCN()
	if it.ItemChanged(cache.ItemUID{Tracker: NodeContent, ID: alcn}) {
		it.logger.Debug("Node content changed", logfields.Node(alcn))
		return true
	}
	if it.ItemChanged(cache.ItemUID{Tracker: NodeMetaInfo, ID: alcn}) {
		it.logger.Debug("Node meta information changed", logfields.Node(alcn))
		return true
	}
	for _, uid := range it.Previous().Dependencies(alcn) {
		if it.ItemChanged(uid) {
			it.logger.Debug("Node dependency changed",
				logfields.Node(alcn),
				logfields.Tracker(uid.Tracker),
				logfields.Item(uid.ID))
			return true
		}
	}
	return false
}

// ItemChanged reports whether the item differs from its previous
// fingerprint. The answer is memoized for the rest of the run.
func (it *ItemTracker) ItemChanged(uid cache.ItemUID) bool {
	it.mu.Lock()
	if v, ok := it.changed[uid]; ok {
		it.mu.Unlock()
		return v
	}
	old, recorded := it.previous.Fingerprint(uid)
	t, registered := it.trackers[uid.Tracker]
	it.mu.Unlock()

	var changed bool
	switch {
	case !recorded:
		changed = true
	case !registered:
		it.logger.Warn("Dependency of unregistered tracker treated as changed",
			logfields.Tracker(uid.Tracker), logfields.Item(uid.ID))
		changed = true
	default:
		changed = t.Changed(uid.ID, old)
	}

	it.mu.Lock()
	it.changed[uid] = changed
	it.mu.Unlock()
	return changed
}
