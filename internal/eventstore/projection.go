package eventstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// RunStatusRunning marks a run without a GenerationFinished record.
const RunStatusRunning = "running"

// RunSummary is the read model of one generation run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Nodes      int           `json:"nodes"`
	Rendered   int           `json:"rendered"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Invalid    int           `json:"invalid,omitempty"`
	// FailedNodes maps each failed node to its error.
	FailedNodes map[string]string `json:"failed_nodes,omitempty"`
}

// RunHistory keeps summaries of the most recent runs, rebuilt from the
// journal and kept current by applying new records.
type RunHistory struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary
	maxSize  int
	lastSync time.Time
}

// NewRunHistory creates a projection over store keeping at most maxSize
// finished runs. A non-positive maxSize keeps 100.
func NewRunHistory(store Store, maxSize int) *RunHistory {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &RunHistory{
		store:   store,
		runs:    map[string]*RunSummary{},
		maxSize: maxSize,
	}
}

// Rebuild replays every record of the journal.
func (p *RunHistory) Rebuild(ctx context.Context) error {
	records, err := p.store.Range(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = map[string]*RunSummary{}
	p.history = nil
	for _, r := range records {
		p.applyLocked(r)
	}
	p.lastSync = time.Now()
	return nil
}

// Apply adds one record to the projection.
func (p *RunHistory) Apply(r Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(r)
}

func (p *RunHistory) applyLocked(r Record) {
	if r.RunID == "" || r.RunID == "unknown" {
		return
	}
	summary, ok := p.runs[r.RunID]
	if !ok {
		summary = &RunSummary{RunID: r.RunID, Status: RunStatusRunning, StartedAt: r.Timestamp}
		p.runs[r.RunID] = summary
	}

	switch r.Type {
	case hooks.EventGenerationStarted:
		var ev hooks.GenerationStarted
		if json.Unmarshal(r.Payload, &ev) == nil {
			summary.Nodes = ev.Nodes
		}
		summary.StartedAt = r.Timestamp
	case hooks.EventNodeFailed:
		var ev hooks.NodeFailed
		if json.Unmarshal(r.Payload, &ev) == nil && ev.ALCN != "" {
			if summary.FailedNodes == nil {
				summary.FailedNodes = map[string]string{}
			}
			summary.FailedNodes[ev.ALCN] = ev.Error
		}
	case hooks.EventGenerationFinished:
		var ev hooks.GenerationFinished
		if json.Unmarshal(r.Payload, &ev) != nil {
			return
		}
		at := r.Timestamp
		summary.FinishedAt = &at
		summary.Duration = ev.Duration
		summary.Rendered, summary.Skipped, summary.Failed = ev.Rendered, ev.Skipped, ev.Failed
		summary.Invalid = ev.Invalid
		summary.Status = string(ev.Outcome())
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistory) addToHistoryLocked(summary *RunSummary) {
	if slices.Contains(p.history, summary) {
		return
	}
	p.history = append(p.history, summary)
	slices.SortStableFunc(p.history, func(a, b *RunSummary) int { return b.StartedAt.Compare(a.StartedAt) })
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneLocked()
}

// pruneLocked drops finished runs that fell out of the history.
func (p *RunHistory) pruneLocked() {
	for id, s := range p.runs {
		if s.Status == RunStatusRunning || slices.Contains(p.history, s) {
			continue
		}
		delete(p.runs, id)
	}
}

// History returns the finished runs, newest first.
func (p *RunHistory) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]RunSummary, len(p.history))
	for i, s := range p.history {
		out[i] = *s
	}
	return out
}

// Run returns the summary of one run.
func (p *RunHistory) Run(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}

// Last returns the most recently started finished run.
func (p *RunHistory) Last() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.history) == 0 {
		return RunSummary{}, false
	}
	return *p.history[0], true
}

// LastSyncTime returns when Rebuild last completed.
func (p *RunHistory) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// IsSuccess reports whether the run finished without failures.
func (s RunSummary) IsSuccess() bool { return s.Status == string(metrics.RunSuccess) }
