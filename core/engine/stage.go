package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hospital-abc/core/catalog"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

// stageRun is the read-only input shared by every pool of one stage
type stageRun struct {
	spec   stageSpec
	cfg    types.StageConfig
	runID  string
	at     time.Time
	driver *types.Driver
	values []types.DriverValue
	rules  []*types.AllocationRule
}

type stageOutput struct {
	results  []types.AllocationResult
	warnings []string
}

// runStage executes one stage. Panics in stage code are converted into
// errors so nothing escapes the stage boundary.
func (e *Engine) runStage(
	ctx context.Context,
	state *types.ExecutionState,
	stage types.Stage,
	cfg types.StageConfig,
	onProgress ProgressFunc,
) (out stageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal("stage panicked", fmt.Errorf("%v", r))
		}
	}()

	spec, err := specFor(stage)
	if err != nil {
		return out, errors.Config("%v", err)
	}

	sr := &stageRun{spec: spec, cfg: cfg, runID: state.RunID, at: e.now()}

	sr.rules, err = e.repo.ListRules(ctx, catalog.RuleFilter{Stage: stage, ActiveOnly: true})
	if err != nil {
		return out, errors.Wrap(errors.TypeConfig, "list rules", err)
	}

	if spec.weights == weightsDriver || cfg.DriverID != "" {
		driver, err := e.resolveDriver(ctx, spec.category, cfg.DriverID)
		if err != nil {
			return out, err
		}
		sr.driver = &driver
		sr.values, err = e.repo.ListDriverValues(ctx, driver.ID, catalog.Period(cfg.PeriodMonth))
		if err != nil {
			return out, errors.Wrap(errors.TypeConfig, "list driver values for "+driver.ID, err)
		}
	}

	pools, chained := e.resolvePools(state, spec, cfg)
	if len(pools) == 0 {
		out.warnings = append(out.warnings, fmt.Sprintf("%s: no source pools configured", stage))
		return out, nil
	}
	for _, p := range pools {
		if p.ID == "" {
			return out, errors.Config("pool without id")
		}
		if p.Amount.IsNegative() {
			return out, errors.Config("pool %s has negative amount %s", p.ID, p.Amount)
		}
	}
	if chained {
		e.logger.Debug("stage pools chained from earlier results",
			zap.String("run_id", state.RunID), zap.String("stage", stage.String()), zap.Int("pools", len(pools)))
	}

	out.warnings = append(out.warnings, e.driftWarnings(ctx, sr)...)

	outs, err := e.allocatePools(ctx, sr, pools, onProgress)
	if err != nil {
		return out, err
	}

	retained := 0
	for _, po := range outs {
		if po.retained {
			retained++
		}
		out.results = append(out.results, po.results...)
		out.warnings = append(out.warnings, po.warnings...)
	}
	if retained > 0 {
		out.warnings = append(out.warnings, fmt.Sprintf("%s: %d chained pools had no allocation path and kept their balance", stage, retained))
	}
	return out, nil
}

// resolveDriver returns the configured driver, or the first active driver
// of the stage's default category
func (e *Engine) resolveDriver(ctx context.Context, category types.DriverCategory, id string) (types.Driver, error) {
	if id != "" {
		d, err := e.repo.GetDriver(ctx, id)
		if err != nil {
			if errors.IsType(err, errors.TypeNotFound) {
				return types.Driver{}, errors.Config("driver %s not found", id)
			}
			return types.Driver{}, err
		}
		if !d.Active {
			return types.Driver{}, errors.Config("driver %s is inactive", id)
		}
		return d, nil
	}

	if category == "" {
		return types.Driver{}, errors.Config("no driver configured")
	}
	drivers, err := e.repo.ListDrivers(ctx, category)
	if err != nil {
		return types.Driver{}, err
	}
	for _, d := range drivers {
		if d.Active {
			return d, nil
		}
	}
	return types.Driver{}, errors.Config("no active %s driver found", category)
}

// allocatePools computes every pool, in parallel when configured. Output
// order always follows pool order.
func (e *Engine) allocatePools(ctx context.Context, sr *stageRun, pools []types.CostPool, onProgress ProgressFunc) ([]poolOutput, error) {
	outs := make([]poolOutput, len(pools))
	tracker := &progressTracker{stage: sr.spec.stage, total: len(pools), report: onProgress}

	if e.opts.Parallelism < 2 || len(pools) < 2 {
		for i, p := range pools {
			po, err := e.safeAllocate(sr, p)
			if err != nil {
				return nil, err
			}
			outs[i] = po
			tracker.step()
		}
		return outs, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, p := range pools {
		g.Go(func() error {
			po, err := e.safeAllocate(sr, p)
			if err != nil {
				return err
			}
			outs[i] = po
			tracker.step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}

func (e *Engine) safeAllocate(sr *stageRun, pool types.CostPool) (po poolOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal("allocating pool "+pool.ID, fmt.Errorf("%v", r))
		}
	}()
	return e.allocatePool(sr, pool)
}

// progressTracker serializes per-pool progress callbacks
type progressTracker struct {
	mu     sync.Mutex
	stage  types.Stage
	total  int
	done   int
	report ProgressFunc
}

func (p *progressTracker) step() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if pct := p.done * 100 / p.total; pct < 100 {
		p.report(p.stage, pct)
	}
}
