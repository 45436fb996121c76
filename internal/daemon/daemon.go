// Package daemon keeps a site up to date: it regenerates on a schedule and,
// when watching, after source changes, and serves metrics while running.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/generator"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Runner performs one generation. *generator.Generator and *app.App
// implement it.
type Runner interface {
	Run(ctx context.Context) (*generator.Report, error)
}

// Options selects the triggers and the metrics endpoint of a Daemon.
type Options struct {
	// Interval between scheduled runs; zero disables the schedule.
	Interval time.Duration
	// WatchDirs are observed for changes when non-empty.
	WatchDirs []string
	// Ignore lists path prefixes whose changes never trigger a run, such as
	// the output and cache directories.
	Ignore   []string
	Debounce time.Duration

	MetricsListen string
	MetricsPath   string
	Registry      *prom.Registry
}

// OptionsFor derives Options from cfg. watchDirs is only used when the
// daemon section enables watching.
func OptionsFor(cfg *config.Config, reg *prom.Registry, watchDirs []string) Options {
	o := Options{
		Interval:      cfg.Daemon.IntervalDuration(),
		Debounce:      cfg.Daemon.DebounceDuration(),
		MetricsListen: cfg.Metrics.Listen,
		MetricsPath:   cfg.Metrics.Path,
		Registry:      reg,
		Ignore:        []string{cfg.Output.Directory},
	}
	if cfg.Cache.Path != "" {
		o.Ignore = append(o.Ignore, cfg.Cache.Path)
	}
	if cfg.Journal.Path != "" {
		o.Ignore = append(o.Ignore, cfg.Journal.Path)
	}
	if cfg.Daemon.Watch {
		o.WatchDirs = watchDirs
	}
	return o
}

// Status describes the runs performed so far.
type Status struct {
	Running    bool      `json:"running"`
	Building   bool      `json:"building"`
	Runs       int       `json:"runs"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastResult string    `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	LastReason string    `json:"last_reason,omitempty"`
}

// Daemon serializes runs requested by the schedule, the watcher and
// callers of Trigger.
type Daemon struct {
	runner Runner
	opts   Options
	logger *slog.Logger

	// requests holds at most one pending run; further requests while one is
	// pending are merged into it.
	requests chan string
	started  time.Time

	mu     sync.RWMutex
	status Status
	addr   string
	ready  chan struct{}
}

// New creates a daemon for runner. A nil logger uses slog.Default().
func New(runner Runner, opts Options, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Daemon{
		runner:   runner,
		opts:     opts,
		logger:   logger,
		requests: make(chan string, 1),
		ready:    make(chan struct{}),
	}
}

// Trigger requests a run. It never blocks; a request made while another is
// pending is merged into it.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.requests <- reason:
		d.logger.Debug("Run requested", slog.String("reason", reason))
	default:
	}
}

// Ready is closed once every trigger source and the metrics server are up.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// MetricsAddr returns the address the metrics server listens on, or "" when
// it is disabled or not started yet.
func (d *Daemon) MetricsAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr
}

// Status returns a copy of the current status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Run performs an initial run and then serves requests until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	d.started = time.Now()
	d.setRunning(true)
	defer d.setRunning(false)

	if d.opts.Interval > 0 {
		sched, err := NewScheduler(d.logger)
		if err != nil {
			return ferrors.DaemonError("create scheduler").WithCause(err).Build()
		}
		if _, err := sched.SchedulePeriodicRun(d.opts.Interval, func() { d.Trigger("schedule") }); err != nil {
			return ferrors.DaemonError("schedule periodic run").
				WithCause(err).
				WithContext("interval", d.opts.Interval.String()).
				Build()
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				d.logger.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
	}

	if len(d.opts.WatchDirs) > 0 {
		w, err := newWatcher(d.opts.WatchDirs, d.opts.Ignore, d.opts.Debounce, func() { d.Trigger("watch") }, d.logger)
		if err != nil {
			return ferrors.DaemonError("watch sources").
				WithCause(err).
				WithContext("dirs", d.opts.WatchDirs).
				Build()
		}
		defer func() { _ = w.Close() }()
		go w.Run(ctx)
	}

	if d.opts.MetricsListen != "" {
		srv, err := d.startHTTP()
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	close(d.ready)
	d.logger.Info("Daemon started",
		slog.Duration("interval", d.opts.Interval),
		slog.Int("watched_dirs", len(d.opts.WatchDirs)),
		slog.String("metrics", d.MetricsAddr()))

	d.Trigger("startup")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Daemon stopped", slog.Int("runs", d.Status().Runs))
			return nil
		case reason := <-d.requests:
			d.runOnce(ctx, reason)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context, reason string) {
	d.mu.Lock()
	d.status.Building = true
	d.mu.Unlock()

	report, err := d.runner.Run(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Building = false
	d.status.Runs++
	d.status.LastRun = time.Now()
	d.status.LastReason = reason
	d.status.LastError = ""
	if report != nil {
		d.status.LastRunID = report.RunID
		d.status.LastResult = string(report.Outcome)
		if rerr := report.Err(); rerr != nil && err == nil {
			d.status.LastError = rerr.Error()
		}
	}
	if err != nil {
		d.status.LastError = err.Error()
		d.logger.Error("Scheduled run failed", slog.String("reason", reason), logfields.Error(err))
		return
	}
	d.logger.Info("Run complete", slog.String("reason", reason), slog.String("summary", report.Summary()))
}

func (d *Daemon) setRunning(v bool) {
	d.mu.Lock()
	d.status.Running = v
	d.mu.Unlock()
}
