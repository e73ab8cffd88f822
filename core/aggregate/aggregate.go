// Package aggregate folds allocation results into per cost object totals.
// Every function here is a pure read of its input; nothing is cached.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"hospital-abc/core/determinism"
	"hospital-abc/core/types"
)

// CostObjectSummary is the cost and revenue landed on one cost object
type CostObjectSummary struct {
	// TargetID is the cost object
	TargetID string `json:"target_id"`

	// TotalCost sums every non-revenue result
	TotalCost decimal.Decimal `json:"total_cost"`

	// TotalRevenue sums xtc results
	TotalRevenue decimal.Decimal `json:"total_revenue"`

	// Results are the contributing results in run order
	Results []types.AllocationResult `json:"results"`
}

// Margin is revenue minus cost
func (s CostObjectSummary) Margin() decimal.Decimal {
	return s.TotalRevenue.Sub(s.TotalCost)
}

// Summarize groups results targeting cost objects by target id
func Summarize(results []types.AllocationResult) map[string]*CostObjectSummary {
	out := make(map[string]*CostObjectSummary)
	for _, r := range results {
		if r.TargetType != types.EntityCostObject {
			continue
		}
		s, ok := out[r.TargetID]
		if !ok {
			s = &CostObjectSummary{TargetID: r.TargetID, TotalCost: decimal.Zero, TotalRevenue: decimal.Zero}
			out[r.TargetID] = s
		}
		if r.IsRevenue() {
			s.TotalRevenue = s.TotalRevenue.Add(r.Amount)
		} else {
			s.TotalCost = s.TotalCost.Add(r.Amount)
		}
		s.Results = append(s.Results, r)
	}
	return out
}

// FromState summarizes a run
func FromState(state *types.ExecutionState) map[string]*CostObjectSummary {
	if state == nil {
		return map[string]*CostObjectSummary{}
	}
	return Summarize(state.Results)
}

// SortedTargets returns summaries ordered by target id
func SortedTargets(summary map[string]*CostObjectSummary) []*CostObjectSummary {
	keys := determinism.SortedKeys(summary)
	out := make([]*CostObjectSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, summary[k])
	}
	return out
}

// StageTotal is the amount moved by one stage
type StageTotal struct {
	Stage   types.Stage     `json:"stage"`
	Amount  decimal.Decimal `json:"amount"`
	Results int             `json:"results"`
}

// ByStage totals results per stage in stage order
func ByStage(results []types.AllocationResult) []StageTotal {
	totals := make(map[types.Stage]*StageTotal)
	for _, r := range results {
		t, ok := totals[r.Stage]
		if !ok {
			t = &StageTotal{Stage: r.Stage, Amount: decimal.Zero}
			totals[r.Stage] = t
		}
		t.Amount = t.Amount.Add(r.Amount)
		t.Results++
	}

	out := make([]StageTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Stage.Index() < out[j].Stage.Index()
	})
	return out
}

// Totals is the grand total over a summary
type Totals struct {
	Cost        decimal.Decimal `json:"cost"`
	Revenue     decimal.Decimal `json:"revenue"`
	CostObjects int             `json:"cost_objects"`
}

// Margin is revenue minus cost
func (t Totals) Margin() decimal.Decimal {
	return t.Revenue.Sub(t.Cost)
}

// Total adds up a summary
func Total(summary map[string]*CostObjectSummary) Totals {
	t := Totals{Cost: decimal.Zero, Revenue: decimal.Zero, CostObjects: len(summary)}
	for _, s := range summary {
		t.Cost = t.Cost.Add(s.TotalCost)
		t.Revenue = t.Revenue.Add(s.TotalRevenue)
	}
	return t
}
