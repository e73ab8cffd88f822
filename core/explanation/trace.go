// Package explanation - Cost explanation tree
// Traces an entity's cost back through the stages that fed it, so a cost
// object total can be read as the chain of pools and ratios behind it.
package explanation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hospital-abc/core/types"
)

// Contribution is one result flowing into an entity, with the flows that
// fed its source in earlier stages
type Contribution struct {
	// Result is the allocation that moved the amount
	Result types.AllocationResult `json:"result"`

	// Attributed is the part of Result.Amount that ends up in the traced entity
	Attributed decimal.Decimal `json:"attributed"`

	// Upstream are the flows into Result.SourceID from earlier stages
	Upstream []*Contribution `json:"upstream,omitempty"`
}

// CostExplanation provides full transparency for one entity
type CostExplanation struct {
	// EntityID is the traced entity
	EntityID string `json:"entity_id"`

	// Total is the sum of all direct inflows
	Total decimal.Decimal `json:"total"`

	// Contributions are the direct inflows in run order
	Contributions []*Contribution `json:"contributions"`
}

// Explain traces every result into entityID. Upstream flows are weighted by
// the ratios along the path, so Attributed shows how much of an earlier
// pool reaches the entity.
func Explain(state *types.ExecutionState, entityID string) *CostExplanation {
	e := &CostExplanation{EntityID: entityID, Total: decimal.Zero, Contributions: []*Contribution{}}
	if state == nil {
		return e
	}

	inflows := make(map[string][]types.AllocationResult)
	for _, r := range state.Results {
		inflows[r.TargetID] = append(inflows[r.TargetID], r)
	}

	e.Contributions = trace(inflows, entityID, len(types.StageOrder), decimal.NewFromInt(1))
	for _, c := range e.Contributions {
		e.Total = e.Total.Add(c.Result.Amount)
	}
	return e
}

// trace follows inflows of id from stages strictly before limit, which
// bounds the recursion by the number of stages
func trace(inflows map[string][]types.AllocationResult, id string, limit int, factor decimal.Decimal) []*Contribution {
	var out []*Contribution
	for _, r := range inflows[id] {
		idx := r.Stage.Index()
		if idx < 0 || idx >= limit {
			continue
		}
		out = append(out, &Contribution{
			Result:     r,
			Attributed: r.Amount.Mul(factor),
			Upstream:   trace(inflows, r.SourceID, idx, factor.Mul(r.DriverRatio)),
		})
	}
	return out
}

// Stages returns the distinct stages in the tree, in stage order
func (e *CostExplanation) Stages() []types.Stage {
	seen := make(map[types.Stage]bool)
	var walk func([]*Contribution)
	walk = func(cs []*Contribution) {
		for _, c := range cs {
			seen[c.Result.Stage] = true
			walk(c.Upstream)
		}
	}
	walk(e.Contributions)

	var out []types.Stage
	for _, st := range types.StageOrder {
		if seen[st] {
			out = append(out, st)
		}
	}
	return out
}

// ToJSON returns JSON representation
func (e *CostExplanation) ToJSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// ToNarrative returns an indented tree, one line per flow
func (e *CostExplanation) ToNarrative() string {
	var sb strings.Builder

	if len(e.Contributions) == 0 {
		sb.WriteString(fmt.Sprintf("%s received no allocations\n", e.EntityID))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%s received %s\n", e.EntityID, e.Total.StringFixed(2)))
	var write func([]*Contribution, int)
	write = func(cs []*Contribution, depth int) {
		for _, c := range cs {
			r := c.Result
			sb.WriteString(strings.Repeat("  ", depth))
			sb.WriteString(fmt.Sprintf("└─ [%s] %s → %s: %s", r.Stage, r.SourceID, r.TargetID, r.Amount.StringFixed(2)))
			if r.DriverID != "" {
				sb.WriteString(fmt.Sprintf(" (%s%% by %s)", r.DriverRatio.Mul(decimal.NewFromInt(100)).StringFixed(2), r.DriverID))
			}
			if depth > 1 {
				sb.WriteString(fmt.Sprintf(", %s reaches %s", c.Attributed.StringFixed(2), e.EntityID))
			}
			sb.WriteString("\n")
			write(c.Upstream, depth+1)
		}
	}
	write(e.Contributions, 1)
	return sb.String()
}
