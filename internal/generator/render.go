package generator

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/contentproc"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/itemtracker"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// stageLoadCache loads the snapshot of the previous run.
func (g *Generator) stageLoadCache(ctx context.Context, st *runState) error {
	previous, err := g.store.Load(ctx)
	if err != nil {
		return err
	}
	st.previous = previous
	return nil
}

// stageStart publishes GenerationStarted; the item tracker swaps in the
// previous snapshot from there.
func (g *Generator) stageStart(ctx context.Context, st *runState) error {
	err := g.bus.Publish(ctx, hooks.GenerationStarted{
		Meta:     g.meta(st),
		Previous: st.previous,
		Nodes:    st.report.Nodes,
	})
	if err != nil {
		return err
	}
	st.started = true
	return nil
}

// stageFinish publishes GenerationFinished, which persists the cache.
func (g *Generator) stageFinish(ctx context.Context, st *runState) error {
	return g.publishFinished(ctx, st, false)
}

func (g *Generator) meta(st *runState) hooks.Meta {
	return hooks.Meta{Run: st.id, At: time.Now()}
}

// stageRender renders every changed node. Staleness is decided on the
// scheduling goroutine; processing runs on up to Concurrency goroutines.
// Node failures are recorded and do not stop other nodes. Cancellation
// stops scheduling and aborts the run.
func (g *Generator) stageRender(ctx context.Context, st *runState) error {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(max(1, g.cfg.Generation.Concurrency))

	for _, n := range st.tree.Nodes() {
		if !producesOutput(n) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := st.failure(n.ALCN()); err != nil {
			st.tracker.Invalidate(n)
			g.publishNode(ctx, hooks.NodeFailed{Meta: g.meta(st), ALCN: n.ALCN(), Error: err.Error()})
			continue
		}
		if !g.needsRender(st, n) {
			st.report.skipped(n.ALCN())
			g.publishNode(ctx, hooks.NodeSkipped{Meta: g.meta(st), ALCN: n.ALCN()})
			continue
		}
		grp.Go(func() error {
			g.renderNode(gctx, st, n)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// needsRender reports whether n changed since the last run or its output
// is missing.
func (g *Generator) needsRender(st *runState, n *tree.Node) bool {
	if st.tracker.NodeChanged(n) {
		return true
	}
	g.writeMu.Lock()
	_, err := g.output.Stat(outputName(n.DestPath()))
	g.writeMu.Unlock()
	if err != nil {
		g.logger.Debug("Output missing", logfields.Node(n.ALCN()), logfields.Dest(n.DestPath()))
		return true
	}
	return false
}

func (g *Generator) renderNode(ctx context.Context, st *runState, n *tree.Node) {
	t0 := time.Now()
	data, err := g.process(ctx, st, n)
	if err == nil {
		err = g.write(n.DestPath(), data)
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return
		}
		if st.markFailed(n.ALCN(), err) {
			st.report.failed(n.ALCN(), err)
		}
		st.tracker.Invalidate(n)
		g.logger.Warn("Node failed", logfields.Node(n.ALCN()), logfields.Error(err))
		g.publishNode(ctx, hooks.NodeFailed{Meta: g.meta(st), ALCN: n.ALCN(), Error: err.Error()})
		return
	}

	st.report.rendered(n.ALCN())
	g.logger.Debug("Node written", logfields.Node(n.ALCN()), logfields.Dest(n.DestPath()))
	g.publishNode(ctx, hooks.NodeWritten{
		Meta:     g.meta(st),
		ALCN:     n.ALCN(),
		Dest:     n.DestPath(),
		Bytes:    len(data),
		Duration: time.Since(t0),
	})
}

// process records the node's own content and meta as dependencies and runs
// its pipeline. Processors add further dependencies through the tracker.
func (g *Generator) process(ctx context.Context, st *runState, n *tree.Node) ([]byte, error) {
	st.tracker.StartNode(n)
	if err := st.tracker.Add(n, itemtracker.NodeContent, n); err != nil {
		return nil, err
	}
	if err := st.tracker.Add(n, itemtracker.NodeMetaInfo, n); err != nil {
		return nil, err
	}
	content, err := n.Content()
	if err != nil {
		return nil, ferrors.BuildError("read node content").
			WithCause(err).
			WithContext("node", n.ALCN()).
			Build()
	}
	rc := &contentproc.Context{
		Content: content,
		Node:    n,
		Dest:    n,
		Tree:    st.tree,
		Tracker: st.tracker,
		Meta:    n.Meta(),
		Logger:  g.logger,
	}
	out, err := st.procs.Execute(ctx, pipelineOf(n), rc)
	if err != nil {
		return nil, err
	}
	return out.Content, nil
}

func (g *Generator) write(dest string, data []byte) error {
	name := outputName(dest)
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if dir := path.Dir(name); dir != "." {
		if err := g.output.MkdirAll(dir, 0o755); err != nil {
			return ferrors.FileSystemError("create output directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}
	if err := util.WriteFile(g.output, name, data, 0o644); err != nil {
		return ferrors.FileSystemError("write output").
			WithCause(err).
			WithContext("dest", dest).
			Build()
	}
	return nil
}

// publishNode delivers a node event. Subscriber failures are logged; they
// do not change the node's outcome.
func (g *Generator) publishNode(ctx context.Context, e hooks.Event) {
	if err := g.bus.Publish(context.WithoutCancel(ctx), e); err != nil {
		g.logger.Warn("Node event subscriber failed", logfields.Phase(e.Name()), logfields.Error(err))
	}
}

func outputName(dest string) string {
	return strings.TrimPrefix(dest, "/")
}
