// Package engine runs the staged Activity-Based Costing allocation.
//
// A run walks the enabled stages in the fixed order rtr → rta → ata1 →
// ata2 → atc → rtc → etc → xtc. Each stage redistributes its cost pools to
// targets by driver values, stored rule ratios or direct assignment, and the
// run accumulates every redistribution in an ExecutionState.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hospital-abc/core/catalog"
	"hospital-abc/core/determinism"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
	"hospital-abc/internal/logging"
)

// ProgressFunc receives stage progress in percent. It is called with 0 when
// a stage starts, after each pool, and with 100 when the stage completes.
type ProgressFunc func(stage types.Stage, percent int)

// MappingSource lists driver mappings so stages can warn about drift
type MappingSource interface {
	List(ctx context.Context) ([]*types.DriverMapping, error)
}

// Options tunes a run
type Options struct {
	// Parallelism bounds concurrent pool computation inside a stage
	Parallelism int

	// ChainStages feeds each stage from the balances left by earlier stages
	ChainStages bool

	// DeviationThreshold in standard deviations; zero disables the check
	DeviationThreshold float64

	// RatioTolerance is the allowed drift of a ratio set from 1.0
	RatioTolerance decimal.Decimal

	// Rounding is applied to allocated amounts
	Rounding types.Rounding
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		Parallelism:        1,
		DeviationThreshold: 2.0,
		RatioTolerance:     catalog.RatioTolerance,
		Rounding:           types.Rounding{Method: types.RoundingNone},
	}
}

// Engine executes allocation runs. It holds no run state; every call to
// ExecuteWorkflow owns its own ExecutionState.
type Engine struct {
	repo       catalog.Repository
	mappings   MappingSource
	opts       Options
	scenarioID string
	logger     *zap.Logger
	ids        *determinism.IDGenerator
	now        func() time.Time
	newRunID   func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithOptions replaces the run options
func WithOptions(o Options) Option {
	return func(e *Engine) { e.opts = o }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMappings enables out-of-sync mapping warnings
func WithMappings(m MappingSource) Option {
	return func(e *Engine) { e.mappings = m }
}

// WithScenario tags runs with the scenario they were planned from
func WithScenario(id string) Option {
	return func(e *Engine) { e.scenarioID = id }
}

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunIDs overrides run id generation
func WithRunIDs(next func() string) Option {
	return func(e *Engine) { e.newRunID = next }
}

// New creates an engine reading from repo
func New(repo catalog.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		opts:     DefaultOptions(),
		ids:      determinism.NewIDGenerator("allocation-result"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.opts.RatioTolerance.IsZero() {
		e.opts.RatioTolerance = catalog.RatioTolerance
	}
	e.logger = logging.OrNop(e.logger).Named("engine")
	return e
}

// ExecuteWorkflow runs the enabled stages in fixed order.
//
// Dependency violations reject the run before any stage executes. A stage
// failure stops the run; results of the stages that finished are kept and
// the failure is recorded as "<stage> failed: <detail>". Cancelling ctx
// stops the run before the next stage starts.
func (e *Engine) ExecuteWorkflow(
	ctx context.Context,
	stages []types.Stage,
	config map[types.Stage]types.StageConfig,
	onProgress ProgressFunc,
) *types.ExecutionState {
	state := types.NewExecutionState(e.newRunID(), e.now())
	state.ScenarioID = e.scenarioID
	log := logging.ForRun(e.logger, state.RunID)

	ordered, _ := OrderStages(stages)
	state.StagesRequested = append(state.StagesRequested, ordered...)

	if errs := ValidateDependencies(stages); len(errs) > 0 {
		state.Errors = append(state.Errors, errs...)
		state.EndTime = e.now()
		log.Warn("run rejected", zap.Strings("errors", errs))
		return state
	}
	state.Validated = true

	if onProgress == nil {
		onProgress = func(types.Stage, int) {}
	}

	log.Info("run started", zap.Int("stages", len(ordered)))
	for _, stage := range ordered {
		if err := ctx.Err(); err != nil {
			state.Errors = append(state.Errors, stageFailure(stage, errors.Wrap(errors.TypeCancelled, "run cancelled", err)))
			log.Warn("run cancelled", zap.String("stage", stage.String()))
			break
		}

		current := stage
		state.CurrentStage = &current
		onProgress(stage, 0)

		out, err := e.runStage(ctx, state, stage, config[stage], onProgress)
		if err != nil {
			state.Errors = append(state.Errors, stageFailure(stage, err))
			log.Error("stage failed", zap.String("stage", stage.String()), zap.Error(err))
			break
		}

		state.Results = append(state.Results, out.results...)
		state.Warnings = append(state.Warnings, out.warnings...)
		state.StagesCompleted = append(state.StagesCompleted, stage)
		state.CurrentStage = nil
		onProgress(stage, 100)

		log.Info("stage completed",
			zap.String("stage", stage.String()),
			zap.Int("results", len(out.results)),
			zap.Int("warnings", len(out.warnings)))
	}

	total := decimal.Zero
	for _, r := range state.Results {
		total = total.Add(r.Amount)
	}
	state.TotalAllocated = total
	state.EndTime = e.now()

	log.Info("run finished",
		zap.String("outcome", string(state.Outcome())),
		zap.Int("results", len(state.Results)),
		zap.String("total_allocated", total.String()),
		zap.Duration("duration", state.Duration()))
	return state
}

func stageFailure(stage types.Stage, err error) string {
	return fmt.Sprintf("%s failed: %s", stage, errors.Detail(err))
}
