package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	runDuration       *prom.HistogramVec
	nodeOutcomes      *prom.CounterVec
	cacheDuration     *prom.HistogramVec
	processorDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "run_duration_seconds",
			Help:      "Duration of generation runs by outcome",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"}),
		nodeOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "node_outcomes_total",
			Help:      "Nodes rendered, skipped or failed",
		}, []string{"outcome"}),
		cacheDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "cache_operation_duration_seconds",
			Help:      "Duration of cache snapshot loads and saves",
			Buckets:   prom.DefBuckets,
		}, []string{"operation", "result"}),
		processorDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "processor_duration_seconds",
			Help:      "Duration of individual content processor calls",
			Buckets:   prom.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"processor", "result"}),
	}
	reg.MustRegister(pr.runDuration, pr.nodeOutcomes, pr.cacheDuration, pr.processorDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration, outcome RunOutcome) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncNodeOutcome(outcome NodeOutcome) {
	if p == nil {
		return
	}
	p.nodeOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveCacheOperation(op string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	p.cacheDuration.WithLabelValues(op, resultLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveProcessorDuration(processor string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	p.processorDuration.WithLabelValues(processor, resultLabel(success)).Observe(d.Seconds())
}
