package cache

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// FormatVersion is written ahead of every encoded snapshot. Increment when
// the wire layout changes.
const FormatVersion uint16 = 1

// ErrIncompatible is returned by Decode for blobs written by another format version.
var ErrIncompatible = errors.New("incompatible cache format")

type wireUID struct {
	Tracker string `msgpack:"t"`
	ID      string `msgpack:"i"`
}

type wireItem struct {
	UID         wireUID `msgpack:"u"`
	Fingerprint string  `msgpack:"f"`
}

type wireNode struct {
	ALCN string    `msgpack:"n"`
	Deps []wireUID `msgpack:"d"`
}

type wireSnapshot struct {
	Nodes []wireNode `msgpack:"nodes"`
	Items []wireItem `msgpack:"items"`
}

// Encode serializes s. Output is deterministic for equal snapshots.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		s = NewSnapshot()
	}
	w := wireSnapshot{
		Nodes: make([]wireNode, 0, len(s.NodeDependencies)),
		Items: make([]wireItem, 0, len(s.ItemFingerprints)),
	}
	for alcn, deps := range s.NodeDependencies {
		n := wireNode{ALCN: alcn, Deps: make([]wireUID, 0, len(deps))}
		for _, uid := range sets.Sorted(deps, CompareItemUID) {
			n.Deps = append(n.Deps, wireUID(uid))
		}
		w.Nodes = append(w.Nodes, n)
	}
	slices.SortFunc(w.Nodes, func(a, b wireNode) int { return strings.Compare(a.ALCN, b.ALCN) })
	for uid, fp := range s.ItemFingerprints {
		w.Items = append(w.Items, wireItem{UID: wireUID(uid), Fingerprint: string(fp)})
	}
	slices.SortFunc(w.Items, func(a, b wireItem) int { return CompareItemUID(ItemUID(a.UID), ItemUID(b.UID)) })

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeUint16(FormatVersion); err != nil {
		return nil, fmt.Errorf("encode version header: %w", err)
	}
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. A blob of another format version
// yields ErrIncompatible.
func Decode(data []byte) (*Snapshot, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	version, err := dec.DecodeUint16()
	if err != nil {
		return nil, fmt.Errorf("decode version header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: found version %d, want %d", ErrIncompatible, version, FormatVersion)
	}
	var w wireSnapshot
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	s := NewSnapshot()
	for _, n := range w.Nodes {
		deps := sets.New[ItemUID]()
		for _, d := range n.Deps {
			deps.Add(ItemUID(d))
		}
		s.NodeDependencies[n.ALCN] = deps
	}
	for _, it := range w.Items {
		s.ItemFingerprints[ItemUID(it.UID)] = Fingerprint(it.Fingerprint)
	}
	return s, nil
}
