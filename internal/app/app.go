// Package app assembles a Generator and its runtime collaborators from a
// configuration: source providers, output filesystem, cache backend, event
// journal, notifications and metrics.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/generator"
	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/notify"
)

// App is a configured generator with everything it publishes to.
type App struct {
	Config    *config.Config
	Generator *generator.Generator
	Bus       *hooks.Bus
	Store     *cache.Store
	Metrics   *prom.Registry
	// Journal is nil unless journal.path is configured.
	Journal *eventstore.SQLiteStore

	logger  *slog.Logger
	closers []func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	notify  bool
	genOpts []generator.Option
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithoutNotifications skips connecting to NATS even when configured.
func WithoutNotifications() Option {
	return func(o *options) { o.notify = false }
}

// WithGeneratorOptions passes additional options to the generator.
func WithGeneratorOptions(opts ...generator.Option) Option {
	return func(o *options) { o.genOpts = append(o.genOpts, opts...) }
}

// New builds an App for cfg. Resources opened on the way are released when
// an error is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{logger: slog.Default(), notify: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: o.logger, Metrics: prom.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	provider, err := Provider(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.Directory, 0o755); err != nil {
		return nil, ferrors.FileSystemError("create output directory").WithCause(err).
			WithContext("path", cfg.Output.Directory).
			Build()
	}

	recorder := metrics.NewPrometheusRecorder(a.Metrics)
	backend, err := CacheBackend(cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, backend.Close)
	a.Store = cache.NewStore(backend, cache.WithLogger(o.logger), cache.WithRecorder(recorder))

	busOpts := []hooks.Option{hooks.WithLogger(o.logger)}
	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, ferrors.FileSystemError("create journal directory").
				WithCause(err).
				WithContext("path", filepath.Dir(cfg.Journal.Path)).
				Build()
		}
		journal, err := eventstore.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.Journal = journal
		a.closers = append(a.closers, journal.Close)
		busOpts = append(busOpts, hooks.WithJournal(journal))
	}
	a.Bus = hooks.NewBus(busOpts...)

	if o.notify && cfg.Notify.Enabled() {
		n, err := notify.Connect(ctx, cfg.Notify, notify.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		n.Subscribe(a.Bus)
		a.closers = append(a.closers, n.Close)
	}

	genOpts := []generator.Option{
		generator.WithLogger(o.logger),
		generator.WithRecorder(recorder),
		generator.WithCacheStore(a.Store),
		generator.WithBus(a.Bus),
		generator.WithFiles(osfs.New(cfg.BaseDir())),
	}
	a.Generator = generator.New(cfg, provider, osfs.New(cfg.Output.Directory), append(genOpts, o.genOpts...)...)

	o.logger.Debug("Application assembled",
		logfields.Source(provider.Name()),
		logfields.Backend(backend.Name()),
		logfields.Path(cfg.Output.Directory))
	return a, nil
}

// Run performs one generation.
func (a *App) Run(ctx context.Context) (*generator.Report, error) {
	return a.Generator.Run(ctx)
}

// CacheStats loads the persisted snapshot and summarizes it.
func (a *App) CacheStats(ctx context.Context) (cache.Stats, error) {
	snap, err := a.Store.Load(ctx)
	if err != nil {
		return cache.Stats{}, err
	}
	return snap.Stats(), nil
}

// History returns the most recent journaled runs, newest first. Without a
// journal it returns nothing.
func (a *App) History(ctx context.Context, limit int) ([]eventstore.RunSummary, error) {
	if a.Journal == nil {
		return nil, nil
	}
	h := eventstore.NewRunHistory(a.Journal, limit)
	if err := h.Rebuild(ctx); err != nil {
		return nil, err
	}
	return h.History(), nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
