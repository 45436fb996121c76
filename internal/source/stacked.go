package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// Mount places a provider in the combined tree. Locations below Strip are
// re-rooted at Prefix; others are not mounted.
type Mount struct {
	Provider Provider
	Prefix   string
	Strip    string
}

// Stacked combines providers. When two mounts yield the same location the
// later mount wins.
type Stacked struct {
	mounts []Mount

	mu    sync.Mutex
	owner map[string]owned
}

type owned struct {
	mount int
	raw   string
}

// NewStacked validates the mount points and stacks the mounts in order.
func NewStacked(mounts ...Mount) (*Stacked, error) {
	for i := range mounts {
		if mounts[i].Prefix == "" {
			mounts[i].Prefix = "/"
		}
		if mounts[i].Strip == "" {
			mounts[i].Strip = "/"
		}
		if mounts[i].Provider == nil {
			return nil, fmt.Errorf("mount %d has no provider", i)
		}
		if err := sitepath.ValidateMountPoint(mounts[i].Prefix); err != nil {
			return nil, err
		}
		if err := sitepath.ValidateMountPoint(mounts[i].Strip); err != nil {
			return nil, err
		}
	}
	return &Stacked{mounts: mounts, owner: map[string]owned{}}, nil
}

func (s *Stacked) Name() string {
	names := make([]string, len(s.mounts))
	for i, m := range s.mounts {
		names[i] = m.Provider.Name()
	}
	return strings.Join(names, "+")
}

// Mounts returns the configured mounts.
func (s *Stacked) Mounts() []Mount { return slices.Clone(s.mounts) }

// Paths lists the mounted locations of every provider.
func (s *Stacked) Paths(ctx context.Context) ([]string, error) {
	owner := map[string]owned{}
	for i, m := range s.mounts {
		raws, err := m.Provider.Paths(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range raws {
			if !strings.HasPrefix(raw, m.Strip) {
				continue
			}
			mounted := m.Prefix + strings.TrimPrefix(raw, m.Strip)
			if mounted == m.Prefix && m.Prefix == "/" {
				continue
			}
			owner[mounted] = owned{mount: i, raw: raw}
		}
	}

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()

	var files []string
	for raw := range owner {
		files = append(files, raw)
	}
	return withDirectories(files), nil
}

func (s *Stacked) lookup(raw string) (Mount, string, error) {
	s.mu.Lock()
	o, ok := s.owner[raw]
	s.mu.Unlock()
	if !ok {
		return Mount{}, "", &Error{Provider: s.Name(), Op: "lookup " + raw, Err: ErrNotFound}
	}
	return s.mounts[o.mount], o.raw, nil
}

// Open opens raw from the provider owning it.
func (s *Stacked) Open(raw string) (io.ReadCloser, error) {
	m, orig, err := s.lookup(raw)
	if err != nil {
		return nil, err
	}
	return m.Provider.Open(orig)
}

// ModTime reports the modification time from the provider owning raw.
func (s *Stacked) ModTime(raw string) (time.Time, error) {
	m, orig, err := s.lookup(raw)
	if err != nil {
		if errors.Is(err, ErrNotFound) && strings.HasSuffix(raw, "/") {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return m.Provider.ModTime(orig)
}
