package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunOutcome classifies a finished run
type RunOutcome string

const (
	// OutcomeCompleted means every requested stage finished
	OutcomeCompleted RunOutcome = "completed"

	// OutcomePartial means a stage failed after the run started
	OutcomePartial RunOutcome = "partial"

	// OutcomeRejected means validation failed before any stage ran
	OutcomeRejected RunOutcome = "rejected"
)

// ExecutionState is the record of one engine run. A run owns its state
// exclusively; it is frozen once EndTime is set.
type ExecutionState struct {
	// RunID identifies the run
	RunID string `json:"run_id"`

	// ScenarioID is the scenario the run was planned from, if any
	ScenarioID string `json:"scenario_id,omitempty"`

	// CurrentStage is the stage in progress, nil between stages
	CurrentStage *Stage `json:"current_stage,omitempty"`

	// StagesRequested are the enabled stages in execution order
	StagesRequested []Stage `json:"stages_requested"`

	// StagesCompleted are the stages that finished
	StagesCompleted []Stage `json:"stages_completed"`

	// TotalAllocated is the sum of all result amounts
	TotalAllocated decimal.Decimal `json:"total_allocated"`

	// Validated is set once dependency validation passed and stages may run
	Validated bool `json:"validated"`

	// Errors holds configuration errors; non-empty means the run did not complete
	Errors []string `json:"errors"`

	// Warnings holds data-quality findings
	Warnings []string `json:"warnings"`

	// StartTime is when the run began
	StartTime time.Time `json:"start_time"`

	// EndTime is when the run finished or aborted
	EndTime time.Time `json:"end_time"`

	// Results are the emitted allocations in deterministic order
	Results []AllocationResult `json:"results"`
}

// NewExecutionState creates a state for a run starting now
func NewExecutionState(runID string, start time.Time) *ExecutionState {
	return &ExecutionState{
		RunID:           runID,
		StagesRequested: []Stage{},
		StagesCompleted: []Stage{},
		Errors:          []string{},
		Warnings:        []string{},
		Results:         []AllocationResult{},
		StartTime:       start,
	}
}

// Outcome classifies the run
func (s *ExecutionState) Outcome() RunOutcome {
	switch {
	case len(s.Errors) == 0:
		return OutcomeCompleted
	case !s.Validated:
		return OutcomeRejected
	default:
		return OutcomePartial
	}
}

// Completed reports whether stage finished in this run
func (s *ExecutionState) Completed(stage Stage) bool {
	for _, st := range s.StagesCompleted {
		if st == stage {
			return true
		}
	}
	return false
}

// ResultsFor returns the results of one stage
func (s *ExecutionState) ResultsFor(stage Stage) []AllocationResult {
	var out []AllocationResult
	for _, r := range s.Results {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

// Duration returns how long the run took
func (s *ExecutionState) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
