package generator

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// NodeFailure records why a node produced no output.
type NodeFailure struct {
	ALCN string
	Err  error
}

// PathFailure records a source location that could not become a node.
type PathFailure struct {
	Raw string
	Err error
}

// Report summarizes one run. It is safe for concurrent updates while the
// run is in progress.
type Report struct {
	RunID  string
	Start  time.Time
	End    time.Time
	Source string

	Nodes    int
	Rendered []string
	Skipped  []string
	Failed   []NodeFailure
	Invalid  []PathFailure
	Drafts   int

	StageDurations map[StageName]time.Duration
	Cache          cache.Stats
	Outcome        metrics.RunOutcome

	mu sync.Mutex
}

func newReport(runID string) *Report {
	return &Report{
		RunID:          runID,
		Start:          time.Now(),
		StageDurations: map[StageName]time.Duration{},
	}
}

func (r *Report) rendered(alcn string) {
	r.mu.Lock()
	r.Rendered = append(r.Rendered, alcn)
	r.mu.Unlock()
}

func (r *Report) skipped(alcn string) {
	r.mu.Lock()
	r.Skipped = append(r.Skipped, alcn)
	r.mu.Unlock()
}

func (r *Report) failed(alcn string, err error) {
	r.mu.Lock()
	r.Failed = append(r.Failed, NodeFailure{ALCN: alcn, Err: err})
	r.mu.Unlock()
}

func (r *Report) invalid(raw string, err error) {
	r.mu.Lock()
	r.Invalid = append(r.Invalid, PathFailure{Raw: raw, Err: err})
	r.mu.Unlock()
}

func (r *Report) stage(name StageName, d time.Duration) {
	r.mu.Lock()
	r.StageDurations[name] = d
	r.mu.Unlock()
}

// finish sorts the node lists and derives the outcome.
func (r *Report) finish(canceled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.End = time.Now()
	slices.Sort(r.Rendered)
	slices.Sort(r.Skipped)
	slices.SortFunc(r.Failed, func(a, b NodeFailure) int { return strings.Compare(a.ALCN, b.ALCN) })
	switch {
	case canceled:
		r.Outcome = metrics.RunCanceled
	case len(r.Failed) == 0 && len(r.Invalid) == 0:
		r.Outcome = metrics.RunSuccess
	case len(r.Rendered) > 0 || len(r.Skipped) > 0:
		r.Outcome = metrics.RunPartial
	default:
		r.Outcome = metrics.RunFailed
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// HasFailures reports whether any node failed or any source path was
// rejected.
func (r *Report) HasFailures() bool { return len(r.Failed) > 0 || len(r.Invalid) > 0 }

// Err returns a *NodeFailuresError when nodes failed or paths were rejected,
// nil otherwise.
func (r *Report) Err() error {
	if !r.HasFailures() {
		return nil
	}
	e := &NodeFailuresError{Failed: len(r.Failed), Invalid: len(r.Invalid)}
	if len(r.Failed) > 0 {
		e.First = r.Failed[0].Err
	} else {
		e.First = r.Invalid[0].Err
	}
	return e
}

// Summary returns a single-line human-readable summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("run=%s nodes=%d rendered=%d skipped=%d failed=%d invalid=%d drafts=%d duration=%s outcome=%s",
		r.RunID, r.Nodes, len(r.Rendered), len(r.Skipped), len(r.Failed), len(r.Invalid), r.Drafts,
		r.Duration().Truncate(time.Millisecond), r.Outcome)
}
