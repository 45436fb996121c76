package generator

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/contentproc"
	"git.home.luguber.info/inful/sitegen/internal/extension"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/itemtracker"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// Names of the extensions every run instantiates.
const (
	ExtMarkdown          = "markdown"
	ExtItemTracker       = "item_tracker"
	ExtContentProcessors = "content_processors"
)

func pathOptions(cfg *config.Config) []sitepath.Option {
	return []sitepath.Option{sitepath.WithDefaultVersion(cfg.Generation.DefaultVersion)}
}

// registry builds the extension registry of one run. Configured parameter
// overrides are applied; nothing is instantiated yet.
func (g *Generator) registry(st *runState) (*extension.Registry, error) {
	r := extension.NewRegistry(g.logger)
	md := g.cfg.Generation.Markdown
	gfm := md.GFM == nil || *md.GFM

	regs := []extension.Registration{
		{
			Name:     ExtMarkdown,
			Abstract: true,
			Params:   map[string]any{"gfm": gfm, "heading_ids": md.HeadingIDs, "unsafe": md.Unsafe},
		},
		{
			Name:    ExtItemTracker,
			Params:  map[string]any{"disabled": slices.Clone(g.cfg.Extensions.DisabledTrackers)},
			Factory: g.itemTrackerFactory(st),
		},
		{
			Name:      ExtContentProcessors,
			DependsOn: []string{ExtMarkdown},
			Factory:   g.processorsFactory,
		},
	}
	regs = append(regs, g.extensions...)
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			return nil, err
		}
	}
	if err := r.Discover(g.cfg.Extensions.Params); err != nil {
		return nil, err
	}
	return r, nil
}

func (g *Generator) itemTrackerFactory(st *runState) extension.Factory {
	return func(_ context.Context, r *extension.Registry) (any, error) {
		raw, err := r.ParamValue(ExtItemTracker, "disabled")
		if err != nil {
			return nil, err
		}
		disabled, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("item_tracker.disabled: %w", err)
		}
		it := itemtracker.New(itemtracker.WithLogger(g.logger))
		if err := itemtracker.RegisterBuiltins(it, st.tree, g.files, g.cfg.Lookup, disabled...); err != nil {
			return nil, err
		}
		for _, name := range slices.Sorted(maps.Keys(g.trackers)) {
			if err := it.Register(name, g.trackers[name]); err != nil {
				return nil, err
			}
		}
		return it, nil
	}
}

func (g *Generator) processorsFactory(_ context.Context, r *extension.Registry) (any, error) {
	var opts contentproc.MarkdownOptions
	var err error
	if opts.GFM, err = extension.Param[bool](r, ExtMarkdown, "gfm"); err != nil {
		return nil, err
	}
	if opts.HeadingIDs, err = extension.Param[bool](r, ExtMarkdown, "heading_ids"); err != nil {
		return nil, err
	}
	if opts.Unsafe, err = extension.Param[bool](r, ExtMarkdown, "unsafe"); err != nil {
		return nil, err
	}

	procs := contentproc.NewRegistry(g.recorder)
	if err := contentproc.RegisterBuiltins(procs, opts); err != nil {
		return nil, err
	}
	for _, spec := range g.processors {
		if err := procs.Register(spec.Name, spec.Processor, spec.Kind, spec.ExtMap); err != nil {
			return nil, err
		}
	}
	return procs, nil
}

// stageExtensions instantiates the extensions and picks up the tracker and
// processor registries they produced.
func (g *Generator) stageExtensions(ctx context.Context, st *runState) error {
	r, err := g.registry(st)
	if err != nil {
		return err
	}
	instances, err := r.InstantiateAll(ctx)
	if err != nil {
		return err
	}
	it, ok := instances[ExtItemTracker].(*itemtracker.ItemTracker)
	if !ok {
		return ferrors.InternalError(fmt.Sprintf("extension %s produced %T", ExtItemTracker, instances[ExtItemTracker])).Build()
	}
	procs, ok := instances[ExtContentProcessors].(*contentproc.Registry)
	if !ok {
		return ferrors.InternalError(fmt.Sprintf("extension %s produced %T", ExtContentProcessors, instances[ExtContentProcessors])).Build()
	}
	st.registry, st.tracker, st.procs = r, it, procs
	return nil
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("want strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want a list of strings, got %T", v)
	}
}
