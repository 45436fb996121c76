package hooks

import (
	"time"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Event is a lifecycle notification published on a Bus.
type Event interface{ Name() string }

// Event names.
const (
	EventGenerationStarted  = "GenerationStarted"
	EventGenerationFinished = "GenerationFinished"
	EventNodeWritten        = "NodeWritten"
	EventNodeFailed         = "NodeFailed"
	EventNodeSkipped        = "NodeSkipped"
)

// Meta is embedded by every event of a run.
type Meta struct {
	Run string    `json:"run_id"`
	At  time.Time `json:"at"`
}

func (m Meta) RunID() string { return m.Run }

// GenerationStarted is published after the cache was loaded and before any
// node is processed. Previous is read-only.
type GenerationStarted struct {
	Meta
	Previous *cache.Snapshot `json:"-"`
	Nodes    int             `json:"nodes"`
}

func (GenerationStarted) Name() string { return EventGenerationStarted }

// GenerationFinished is published after node processing and before the
// cache is saved. Subscribers returning an error fail the run.
type GenerationFinished struct {
	Meta
	Rendered int           `json:"rendered"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Invalid  int           `json:"invalid,omitempty"`
	Duration time.Duration `json:"duration"`
	Canceled bool          `json:"canceled,omitempty"`
}

func (GenerationFinished) Name() string { return EventGenerationFinished }

// NodeWritten is published for every node whose output was written.
type NodeWritten struct {
	Meta
	ALCN     string        `json:"alcn"`
	Dest     string        `json:"dest"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

func (NodeWritten) Name() string { return EventNodeWritten }

// NodeFailed is published for every node whose processing failed.
type NodeFailed struct {
	Meta
	ALCN  string `json:"alcn"`
	Error string `json:"error"`
}

func (NodeFailed) Name() string { return EventNodeFailed }

// NodeSkipped is published for every node that was up to date.
type NodeSkipped struct {
	Meta
	ALCN string `json:"alcn"`
}

func (NodeSkipped) Name() string { return EventNodeSkipped }

// Outcome derives the run outcome from the counts.
func (e GenerationFinished) Outcome() metrics.RunOutcome {
	switch {
	case e.Canceled:
		return metrics.RunCanceled
	case e.Failed == 0 && e.Invalid == 0:
		return metrics.RunSuccess
	case e.Rendered > 0 || e.Skipped > 0:
		return metrics.RunPartial
	default:
		return metrics.RunFailed
	}
}
