package generator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/contentproc"
	"git.home.luguber.info/inful/sitegen/internal/extension"
	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/itemtracker"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/storage"
	"git.home.luguber.info/inful/sitegen/internal/tree"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// ProcessorSpec registers an additional content processor.
type ProcessorSpec struct {
	Name      string
	Processor contentproc.Processor
	Kind      contentproc.Kind
	ExtMap    map[string]string
}

// Generator turns the locations of a source provider into files on an
// output filesystem. Runs are serialized; a Generator may be reused for
// consecutive runs and keeps its cache store between them.
type Generator struct {
	cfg    *config.Config
	source source.Provider
	output billy.Filesystem

	store    *cache.Store
	bus      *hooks.Bus
	recorder metrics.Recorder
	logger   *slog.Logger
	files    billy.Basic

	processors []ProcessorSpec
	trackers   map[string]itemtracker.Tracker
	extensions []extension.Registration

	runMu  sync.Mutex
	mu     sync.Mutex
	active *runState
	// writeMu serializes output access; billy filesystems are not all safe
	// for concurrent use.
	writeMu sync.Mutex
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(g *Generator) { g.recorder = metrics.OrNoop(r) }
}

// WithCacheStore persists cache snapshots through store. Without it the
// snapshot is kept in memory for the lifetime of the Generator.
func WithCacheStore(store *cache.Store) Option {
	return func(g *Generator) { g.store = store }
}

// WithBus publishes lifecycle events on b so other components can
// subscribe. A private bus is used otherwise.
func WithBus(b *hooks.Bus) Option {
	return func(g *Generator) { g.bus = b }
}

// WithFiles enables the file tracker for files of fs.
func WithFiles(fs billy.Basic) Option {
	return func(g *Generator) { g.files = fs }
}

// WithProcessor registers an additional content processor.
func WithProcessor(spec ProcessorSpec) Option {
	return func(g *Generator) { g.processors = append(g.processors, spec) }
}

// WithTracker registers an additional item tracker.
func WithTracker(name string, t itemtracker.Tracker) Option {
	return func(g *Generator) { g.trackers[name] = t }
}

// WithExtension registers an additional extension that is instantiated
// before rendering starts.
func WithExtension(reg extension.Registration) Option {
	return func(g *Generator) { g.extensions = append(g.extensions, reg) }
}

// New creates a generator for cfg reading from src and writing to out.
func New(cfg *config.Config, src source.Provider, out billy.Filesystem, opts ...Option) *Generator {
	g := &Generator{
		cfg:      cfg,
		source:   src,
		output:   out,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		trackers: map[string]itemtracker.Tracker{},
	}
	for _, o := range opts {
		o(g)
	}
	if g.bus == nil {
		g.bus = hooks.NewBus(hooks.WithLogger(g.logger))
	}
	if g.store == nil {
		g.store = cache.NewStore(storage.NewMemoryBackend(), cache.WithLogger(g.logger), cache.WithRecorder(g.recorder))
	}
	g.subscribe()
	return g
}

// Bus returns the lifecycle bus.
func (g *Generator) Bus() *hooks.Bus { return g.bus }

// runState carries everything one run builds.
type runState struct {
	id       string
	tree     *tree.Tree
	registry *extension.Registry
	tracker  *itemtracker.ItemTracker
	procs    *contentproc.Registry
	previous *cache.Snapshot
	report   *Report
	started  bool

	mu     sync.Mutex
	failed map[string]error
	// retained holds nodes whose source is still listed but which are not
	// in the tree this run, such as drafts. Their cache entries survive.
	retained sets.Set[string]
}

func (st *runState) retain(p *sitepath.Path) {
	alcn, err := p.ALCNErr()
	if err != nil {
		return
	}
	st.mu.Lock()
	st.retained.Add(alcn)
	st.mu.Unlock()
}

// markFailed records the first failure of a node and reports whether it
// was new.
func (st *runState) markFailed(alcn string, err error) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.failed[alcn]; ok {
		return false
	}
	st.failed[alcn] = err
	return true
}

func (st *runState) failure(alcn string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.failed[alcn]
}

func (g *Generator) current() *runState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// subscribe wires the item tracker, the cache store and the metrics
// recorder to the lifecycle.
func (g *Generator) subscribe() {
	hooks.SubscribeMetrics(g.bus, g.recorder)
	g.bus.Subscribe(hooks.EventGenerationStarted, func(_ context.Context, e hooks.Event) error {
		ev, ok := e.(hooks.GenerationStarted)
		st := g.current()
		if !ok || st == nil || st.id != ev.Run {
			return nil
		}
		st.tracker.Start(ev.Previous)
		return nil
	})
	g.bus.Subscribe(hooks.EventGenerationFinished, func(ctx context.Context, e hooks.Event) error {
		ev, ok := e.(hooks.GenerationFinished)
		st := g.current()
		if !ok || st == nil || st.id != ev.Run || ev.Canceled {
			return nil
		}
		return g.persist(ctx, st)
	})
}

// persist merges this run's tracker state over the previous snapshot,
// dropping nodes that no longer exist, and saves it.
func (g *Generator) persist(ctx context.Context, st *runState) error {
	previous := st.previous.Clone()
	dropped := previous.Prune(func(alcn string) bool {
		return st.tree.Node(alcn) != nil || st.retained.Has(alcn)
	})
	merged, err := g.store.Save(ctx, previous, st.tracker.Current())
	if err != nil {
		return err
	}
	st.report.Cache = merged.Stats()
	g.logger.Debug("Cache snapshot saved",
		logfields.RunID(st.id),
		logfields.Count(st.report.Cache.Nodes),
		slog.Int("pruned", dropped))
	return nil
}

// Run performs one generation. The returned error is non-nil only when the
// run was aborted; node failures are listed in the report and summarized by
// Report.Err.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	id := uuid.NewString()
	st := &runState{
		id:       id,
		tree:     tree.New(pathOptions(g.cfg)...),
		report:   newReport(id),
		failed:   map[string]error{},
		retained: sets.New[string](),
	}
	st.report.Source = g.source.Name()
	g.mu.Lock()
	g.active = st
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active = nil
		g.mu.Unlock()
	}()

	log := g.logger.With(logfields.RunID(id))
	log.Info("Generation started", logfields.Source(g.source.Name()))

	err := g.runStages(ctx, st, g.stages())
	var se *StageError
	canceled := errors.As(err, &se) && se.Kind == StageErrorCanceled
	if canceled && st.started {
		if perr := g.publishFinished(context.WithoutCancel(ctx), st, true); perr != nil {
			log.Warn("Failed to publish canceled run", logfields.Error(perr))
		}
	}
	st.report.finish(canceled)

	if err != nil {
		log.Error("Generation aborted", logfields.Error(err))
		return st.report, err
	}
	log.Info("Generation finished",
		slog.Int("rendered", len(st.report.Rendered)),
		slog.Int("skipped", len(st.report.Skipped)),
		slog.Int("failed", len(st.report.Failed)),
		logfields.DurationMS(float64(st.report.Duration().Microseconds())/1000))
	return st.report, nil
}

func (g *Generator) publishFinished(ctx context.Context, st *runState, canceled bool) error {
	st.report.mu.Lock()
	ev := hooks.GenerationFinished{
		Meta:     g.meta(st),
		Rendered: len(st.report.Rendered),
		Skipped:  len(st.report.Skipped),
		Failed:   len(st.report.Failed),
		Invalid:  len(st.report.Invalid),
		Duration: time.Since(st.report.Start),
		Canceled: canceled,
	}
	st.report.mu.Unlock()
	return g.bus.Publish(ctx, ev)
}
