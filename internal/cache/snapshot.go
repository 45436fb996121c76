// Package cache persists the dependency and fingerprint state of a run so the
// next run can decide which nodes are stale.
//
// A run loads the previous Snapshot once, treats it as read-only, collects
// its own writes in a fresh Snapshot and, at the end, merges the two and
// saves the result through a storage.Backend.
package cache

import (
	"cmp"
	"maps"

	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// ItemUID identifies a tracked item: the tracker that owns it and the
// identity the tracker computed.
type ItemUID struct {
	Tracker string
	ID      string
}

func (u ItemUID) String() string { return u.Tracker + ":" + u.ID }

// CompareItemUID orders by tracker, then identity.
func CompareItemUID(a, b ItemUID) int {
	if c := cmp.Compare(a.Tracker, b.Tracker); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Fingerprint is the opaque change marker a tracker computes for an item.
type Fingerprint string

// Snapshot holds node dependencies and item fingerprints.
// It is not safe for concurrent mutation; owners serialize writes.
type Snapshot struct {
	NodeDependencies map[string]sets.Set[ItemUID]
	ItemFingerprints map[ItemUID]Fingerprint
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		NodeDependencies: map[string]sets.Set[ItemUID]{},
		ItemFingerprints: map[ItemUID]Fingerprint{},
	}
}

// Dependencies returns the items alcn depends on, sorted.
func (s *Snapshot) Dependencies(alcn string) []ItemUID {
	if s == nil {
		return nil
	}
	deps, ok := s.NodeDependencies[alcn]
	if !ok {
		return nil
	}
	return sets.Sorted(deps, CompareItemUID)
}

// HasNode reports whether dependencies were recorded for alcn.
func (s *Snapshot) HasNode(alcn string) bool {
	if s == nil {
		return false
	}
	_, ok := s.NodeDependencies[alcn]
	return ok
}

// Fingerprint returns the recorded fingerprint of uid.
func (s *Snapshot) Fingerprint(uid ItemUID) (Fingerprint, bool) {
	if s == nil {
		return "", false
	}
	fp, ok := s.ItemFingerprints[uid]
	return fp, ok
}

// AddDependency records uid as a dependency of alcn.
func (s *Snapshot) AddDependency(alcn string, uid ItemUID) {
	deps, ok := s.NodeDependencies[alcn]
	if !ok {
		deps = sets.New[ItemUID]()
		s.NodeDependencies[alcn] = deps
	}
	deps.Add(uid)
}

// ResetNode starts an empty dependency set for alcn. A node that is
// processed again records its dependencies from scratch.
func (s *Snapshot) ResetNode(alcn string) {
	s.NodeDependencies[alcn] = sets.New[ItemUID]()
}

// SetFingerprint stores fp for uid.
func (s *Snapshot) SetFingerprint(uid ItemUID, fp Fingerprint) {
	s.ItemFingerprints[uid] = fp
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot()
	if s == nil {
		return out
	}
	for alcn, deps := range s.NodeDependencies {
		out.NodeDependencies[alcn] = deps.Clone()
	}
	out.ItemFingerprints = maps.Clone(s.ItemFingerprints)
	if out.ItemFingerprints == nil {
		out.ItemFingerprints = map[ItemUID]Fingerprint{}
	}
	return out
}

// Merge returns a new snapshot holding previous overlaid with current. Each
// key present in current fully replaces the previous entry; keys current did
// not touch are retained. Neither input is modified.
func Merge(previous, current *Snapshot) *Snapshot {
	out := previous.Clone()
	if current == nil {
		return out
	}
	for alcn, deps := range current.NodeDependencies {
		out.NodeDependencies[alcn] = deps.Clone()
	}
	maps.Copy(out.ItemFingerprints, current.ItemFingerprints)
	return out
}

// Prune removes the dependency entries of nodes for which keep returns false
// and every fingerprint no remaining node depends on.
func (s *Snapshot) Prune(keep func(alcn string) bool) int {
	removed := 0
	for alcn := range s.NodeDependencies {
		if !keep(alcn) {
			delete(s.NodeDependencies, alcn)
			removed++
		}
	}
	used := sets.New[ItemUID]()
	for _, deps := range s.NodeDependencies {
		for uid := range deps {
			used.Add(uid)
		}
	}
	for uid := range s.ItemFingerprints {
		if !used.Has(uid) {
			delete(s.ItemFingerprints, uid)
		}
	}
	return removed
}

// Stats summarizes a snapshot.
type Stats struct {
	Nodes        int
	Items        int
	Dependencies int
	ByTracker    map[string]int
}

// Stats counts nodes, fingerprinted items and dependency edges.
func (s *Snapshot) Stats() Stats {
	st := Stats{ByTracker: map[string]int{}}
	if s == nil {
		return st
	}
	st.Nodes = len(s.NodeDependencies)
	st.Items = len(s.ItemFingerprints)
	for _, deps := range s.NodeDependencies {
		st.Dependencies += len(deps)
	}
	for uid := range s.ItemFingerprints {
		st.ByTracker[uid.Tracker]++
	}
	return st
}

// IsEmpty reports whether nothing was recorded.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.NodeDependencies) == 0 && len(s.ItemFingerprints) == 0)
}
