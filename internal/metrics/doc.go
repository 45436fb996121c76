// Package metrics provides the observability hooks of a generation run.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	gen := generator.New(cfg, generator.WithRecorder(metrics.NoopRecorder{}))
//
// PrometheusRecorder forwards to client_golang collectors registered on a
// caller supplied registry; HTTPHandler exposes that registry for scraping
// in daemon mode.
package metrics
