// Package source provides the locations a site is generated from.
//
// A Provider lists absolute raw locations ("/docs/", "/docs/intro.md"),
// opens their content and reports modification times. Directories end in
// "/" and carry no content.
package source

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// ErrNotFound is returned for locations a provider does not know.
var ErrNotFound = errors.New("source location not found")

// Provider lists and opens source locations.
type Provider interface {
	Name() string
	Paths(ctx context.Context) ([]string, error)
	Open(raw string) (io.ReadCloser, error)
	ModTime(raw string) (time.Time, error)
}

// Error wraps provider failures with the source category.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string { return e.Provider + ": " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Category() ferrors.ErrorCategory { return ferrors.CategorySource }

// withDirectories adds the parent directories of every file and sorts the
// result.
func withDirectories(files []string) []string {
	seen := make(map[string]bool, len(files)*2)
	out := make([]string, 0, len(files)*2)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, f := range files {
		add(f)
		for i := strings.LastIndexByte(strings.TrimSuffix(f, "/"), '/'); i > 0; i = strings.LastIndexByte(f[:i], '/') {
			add(f[:i+1])
		}
	}
	slices.Sort(out)
	return out
}

func excluded(raw string, patterns []string, match func(p, pattern string) bool) bool {
	for _, pat := range patterns {
		if match(raw, pat) {
			return true
		}
	}
	return false
}
