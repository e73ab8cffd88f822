package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationResult is one atomic redistribution produced by a run.
// Results are immutable once emitted.
type AllocationResult struct {
	// ID is stable for a given run, stage, source and target
	ID string `json:"id"`

	// Stage produced the result
	Stage Stage `json:"stage"`

	// SourceID is the entity allocated from
	SourceID string `json:"source_id"`

	// SourceType is the kind of source entity
	SourceType EntityType `json:"source_type"`

	// TargetID is the entity allocated to
	TargetID string `json:"target_id"`

	// TargetType is the kind of target entity
	TargetType EntityType `json:"target_type"`

	// Amount is the allocated currency amount
	Amount decimal.Decimal `json:"amount"`

	// DriverID is the driver behind the ratio, if any
	DriverID string `json:"driver_id,omitempty"`

	// DriverRatio is the share of the source amount (0-1)
	DriverRatio decimal.Decimal `json:"driver_ratio"`

	// CalculationMethod tags the basis (e.g. "time_based")
	CalculationMethod string `json:"calculation_method"`

	// ExecutionTime is when the stage ran
	ExecutionTime time.Time `json:"execution_time"`

	// Notes is a human-readable explanation
	Notes string `json:"notes,omitempty"`
}

// IsRevenue reports whether the amount is revenue rather than cost
func (r AllocationResult) IsRevenue() bool {
	return r.Stage == StageXTC
}

// CostPool is one source amount fed into a stage
type CostPool struct {
	// ID is the source entity id
	ID string `json:"id"`

	// Name is used in result notes; defaults to ID
	Name string `json:"name,omitempty"`

	// Type is the source entity type; defaults to the stage's source type
	Type EntityType `json:"type,omitempty"`

	// Amount is the non-negative amount to allocate
	Amount decimal.Decimal `json:"amount"`

	// TargetIDs restricts proportional stages to these targets
	TargetIDs []string `json:"target_ids,omitempty"`

	// TargetID is the receiver for direct stages
	TargetID string `json:"target_id,omitempty"`

	// Derived marks pools built from a previous stage's results
	Derived bool `json:"derived,omitempty"`
}

// Label returns the name used in notes
func (p CostPool) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// StageConfig parameterizes one stage of a run
type StageConfig struct {
	// DriverID overrides the stage's default driver category lookup
	DriverID string `json:"driver_id,omitempty"`

	// PeriodMonth selects driver values (0 = annual)
	PeriodMonth int `json:"period_month"`

	// Pools is the ledger of source amounts for the stage
	Pools []CostPool `json:"pools"`

	// ChainFromPrevious derives pools from the previous stage's targets
	ChainFromPrevious bool `json:"chain_from_previous,omitempty"`
}
