package hooks

import (
	"context"

	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// SubscribeMetrics reports node outcomes and run durations to r.
func SubscribeMetrics(b *Bus, r metrics.Recorder) {
	r = metrics.OrNoop(r)
	node := func(outcome metrics.NodeOutcome) Handler {
		return func(context.Context, Event) error {
			r.IncNodeOutcome(outcome)
			return nil
		}
	}
	b.Subscribe(EventNodeWritten, node(metrics.NodeRendered))
	b.Subscribe(EventNodeSkipped, node(metrics.NodeSkipped))
	b.Subscribe(EventNodeFailed, node(metrics.NodeFailed))
	b.Subscribe(EventGenerationFinished, func(_ context.Context, e Event) error {
		if f, ok := e.(GenerationFinished); ok {
			r.ObserveRunDuration(f.Duration, f.Outcome())
		}
		return nil
	})
}
