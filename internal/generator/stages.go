package generator

import (
	"context"
	"errors"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// StageName identifies a stage of a run.
type StageName string

const (
	StageExtensions   StageName = "extensions"
	StageRead         StageName = "read"
	StageDestinations StageName = "destinations"
	StageLoadCache    StageName = "load_cache"
	StageStart        StageName = "start"
	StageRender       StageName = "render"
	StageFinish       StageName = "finish"
)

// Stage is one step of a run.
type Stage func(ctx context.Context, st *runState) error

type namedStage struct {
	name StageName
	fn   Stage
}

func (g *Generator) stages() []namedStage {
	return []namedStage{
		{StageExtensions, g.stageExtensions},
		{StageRead, g.stageRead},
		{StageDestinations, g.stageDestinations},
		{StageLoadCache, g.stageLoadCache},
		{StageStart, g.stageStart},
		{StageRender, g.stageRender},
		{StageFinish, g.stageFinish},
	}
}

// runStages executes stages in order, recording timings and stopping at the
// first error. Cancellation is reported as a canceled stage error.
func (g *Generator) runStages(ctx context.Context, st *runState, stages []namedStage) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Kind: StageErrorCanceled, Stage: s.name, Err: err}
		}
		t0 := time.Now()
		err := s.fn(ctx, st)
		d := time.Since(t0)
		st.report.stage(s.name, d)
		g.logger.Debug("Stage finished",
			logfields.RunID(st.id),
			logfields.Phase(string(s.name)),
			logfields.DurationMS(float64(d.Microseconds())/1000))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &StageError{Kind: StageErrorCanceled, Stage: s.name, Err: err}
			}
			return &StageError{Kind: StageErrorFatal, Stage: s.name, Err: err}
		}
	}
	return nil
}
