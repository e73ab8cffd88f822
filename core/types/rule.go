package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationRatio is one source→target weight of a rule
type AllocationRatio struct {
	// SourceID is the entity being allocated from
	SourceID string `json:"source_id" validate:"required"`

	// TargetID is the entity receiving the share
	TargetID string `json:"target_id" validate:"required"`

	// Ratio is the fraction of the source assigned to the target (0-1)
	Ratio decimal.Decimal `json:"ratio"`

	// DriverValue is the driver magnitude the ratio was derived from
	DriverValue decimal.Decimal `json:"driver_value"`
}

// AllocationRule is a configured redistribution instruction
type AllocationRule struct {
	// ID uniquely identifies the rule
	ID string `json:"id" validate:"required"`

	// Name is a human-readable label
	Name string `json:"name,omitempty"`

	// Stage is the stage this rule belongs to
	Stage Stage `json:"stage" validate:"required,oneof=rtr rta ata1 ata2 atc rtc etc xtc"`

	// Method is the redistribution method
	Method AllocationMethod `json:"method" validate:"required,oneof=direct proportional step_down reciprocal equal"`

	// Active marks the rule as used by runs
	Active bool `json:"active"`

	// Priority orders rules within a stage; lower runs first
	Priority int `json:"priority"`

	// SourceType is the kind of entity allocated from
	SourceType EntityType `json:"source_type" validate:"required"`

	// SourceIDs lists the entities allocated from
	SourceIDs []string `json:"source_ids" validate:"dive,required"`

	// TargetType is the kind of entity allocated to
	TargetType EntityType `json:"target_type" validate:"required"`

	// TargetIDs lists the entities allocated to
	TargetIDs []string `json:"target_ids" validate:"dive,required"`

	// DriverID parameterizes the rule; empty for fixed-ratio rules
	DriverID string `json:"driver_id,omitempty"`

	// DriverBasis is denormalized from the driver for traceability
	DriverBasis DriverBasis `json:"driver_basis,omitempty"`

	// DriverCategory is denormalized from the driver for traceability
	DriverCategory DriverCategory `json:"driver_category,omitempty"`

	// AllocationRatios are the precomputed source→target weights
	AllocationRatios []AllocationRatio `json:"allocation_ratios,omitempty" validate:"dive"`

	// UpdatedAt versions the rule implicitly
	UpdatedAt time.Time `json:"updated_at"`
}

// RatiosFor returns the ratios of one source in stored order
func (r *AllocationRule) RatiosFor(sourceID string) []AllocationRatio {
	var out []AllocationRatio
	for _, ar := range r.AllocationRatios {
		if ar.SourceID == sourceID {
			out = append(out, ar)
		}
	}
	return out
}

// HasSource reports whether the rule allocates from sourceID
func (r *AllocationRule) HasSource(sourceID string) bool {
	for _, id := range r.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	for _, ar := range r.AllocationRatios {
		if ar.SourceID == sourceID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the rule
func (r *AllocationRule) Clone() *AllocationRule {
	c := *r
	c.SourceIDs = append([]string(nil), r.SourceIDs...)
	c.TargetIDs = append([]string(nil), r.TargetIDs...)
	c.AllocationRatios = append([]AllocationRatio(nil), r.AllocationRatios...)
	return &c
}

// ScenarioSettings are the execution settings of a scenario
type ScenarioSettings struct {
	// Rounding is applied to allocated amounts
	Rounding Rounding `json:"rounding"`

	// AutoCalculate reruns allocation when rules change
	AutoCalculate bool `json:"auto_calculate"`
}

// AllocationScenario is a named, versioned bundle of rules
type AllocationScenario struct {
	ID          string           `json:"id" validate:"required"`
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Description string           `json:"description,omitempty"`
	RuleIDs     []string         `json:"rule_ids"`
	Settings    ScenarioSettings `json:"settings"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
