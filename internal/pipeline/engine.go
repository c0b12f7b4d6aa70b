package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/store"
)

// Engine orchestrates dataset loads.
type Engine struct {
	env *Env
	reg *Registry
}

// NewEngine creates a new load engine.
func NewEngine(env *Env, reg *Registry) *Engine {
	return &Engine{env: env, reg: reg}
}

// Run loads the selected datasets in registry order, recording each in
// the run log. A failing dataset does not stop the others; the returned
// error wraps the first failure. Summaries of the successful loads are
// returned either way.
func (e *Engine) Run(ctx context.Context, names []string) ([]*Summary, error) {
	log := zap.L().With(zap.String("component", "pipeline.engine"))

	datasets, err := e.reg.Select(names)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		log.Info("no datasets selected")
		return nil, nil
	}

	log.Info("selected datasets", zap.Int("count", len(datasets)))

	var (
		summaries []*Summary
		firstErr  error
		failed    int
	)
	for _, ds := range datasets {
		select {
		case <-ctx.Done():
			return summaries, ctx.Err()
		default:
		}

		sum, err := e.runOne(ctx, ds)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summaries = append(summaries, sum)
	}

	log.Info("engine run complete",
		zap.Int("loaded", len(summaries)),
		zap.Int("failed", failed),
	)
	if firstErr != nil {
		return summaries, eris.Wrapf(firstErr, "engine: %d of %d datasets failed", failed, len(datasets))
	}
	return summaries, nil
}

func (e *Engine) runOne(ctx context.Context, ds Dataset) (*Summary, error) {
	dsLog := zap.L().With(zap.String("component", "pipeline.engine"), zap.String("dataset", ds.Name()))

	dsLog.Info("starting load")
	runID, err := e.env.Store.StartRun(ctx, ds.Name())
	if err != nil {
		return nil, eris.Wrapf(err, "engine: start run log for %s", ds.Name())
	}

	start := time.Now()
	sum, err := ds.Load(ctx, e.env)
	elapsed := time.Since(start)

	if err != nil {
		dsLog.Error("load failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if logErr := e.env.Store.FailRun(ctx, runID, err.Error()); logErr != nil {
			dsLog.Error("failed to record load failure", zap.Error(logErr))
		}
		return nil, err
	}

	if err := e.env.Store.CompleteRun(ctx, runID, &store.RunResult{
		Rows:     sum.Rows(),
		Metadata: sum.Metadata(),
	}); err != nil {
		dsLog.Error("failed to record load completion", zap.Error(err))
	}

	dsLog.Info("load complete",
		zap.Int("total", sum.Stats.Total),
		zap.Int("resolved", sum.Stats.Resolved),
		zap.Int("unresolved", sum.Stats.Unresolved),
		zap.Int("defaults", sum.Defaults.Total()),
		zap.Int64("rows", sum.Rows()),
		zap.Duration("elapsed", elapsed),
	)
	return sum, nil
}
