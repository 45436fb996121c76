package metrics

import "time"

// NodeOutcome enumerates what happened to a node during a run.
type NodeOutcome string

const (
	NodeRendered NodeOutcome = "rendered"
	NodeSkipped  NodeOutcome = "skipped"
	NodeFailed   NodeOutcome = "failed"
)

// RunOutcome is the final status of a generation run.
type RunOutcome string

const (
	RunSuccess  RunOutcome = "success"
	RunPartial  RunOutcome = "partial"
	RunFailed   RunOutcome = "failed"
	RunCanceled RunOutcome = "canceled"
)

// Cache operations reported through ObserveCacheOperation.
const (
	CacheLoad = "load"
	CacheSave = "save"
)

// Recorder defines observability hooks for generation runs. Implementations
// may forward to Prometheus or any other system.
type Recorder interface {
	ObserveRunDuration(d time.Duration, outcome RunOutcome)
	IncNodeOutcome(outcome NodeOutcome)
	ObserveCacheOperation(op string, d time.Duration, success bool)
	ObserveProcessorDuration(processor string, d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration, RunOutcome)            {}
func (NoopRecorder) IncNodeOutcome(NodeOutcome)                             {}
func (NoopRecorder) ObserveCacheOperation(string, time.Duration, bool)     {}
func (NoopRecorder) ObserveProcessorDuration(string, time.Duration, bool) {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
