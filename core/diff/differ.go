// Package diff provides cost object level diffing of allocation runs.
// Compares two runs of a scenario cost object by cost object and stage by stage.
package diff

import (
	"github.com/shopspring/decimal"

	"hospital-abc/core/aggregate"
	"hospital-abc/core/determinism"
	"hospital-abc/core/types"
)

// DiffResult is the complete diff between two runs
type DiffResult struct {
	// Overall summary
	CostBefore    decimal.Decimal `json:"cost_before"`
	CostAfter     decimal.Decimal `json:"cost_after"`
	Delta         decimal.Decimal `json:"delta"`
	DeltaPercent  float64         `json:"delta_percent"`
	RevenueBefore decimal.Decimal `json:"revenue_before"`
	RevenueAfter  decimal.Decimal `json:"revenue_after"`

	// CostObjects lists added, removed and modified cost objects by id
	CostObjects []*CostObjectDiff `json:"cost_objects,omitempty"`

	// Stages lists the amount moved per stage in either run
	Stages []StageDiff `json:"stages,omitempty"`

	// Counts
	AddedCount     int `json:"added"`
	RemovedCount   int `json:"removed"`
	ChangedCount   int `json:"changed"`
	UnchangedCount int `json:"unchanged"`
}

// CostObjectDiff describes changes to a single cost object
type CostObjectDiff struct {
	TargetID   string          `json:"target_id"`
	ChangeType ChangeType      `json:"change_type"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	Delta      decimal.Decimal `json:"delta"`

	RevenueBefore decimal.Decimal `json:"revenue_before"`
	RevenueAfter  decimal.Decimal `json:"revenue_after"`
}

// StageDiff is the change in amount moved by one stage
type StageDiff struct {
	Stage  types.Stage     `json:"stage"`
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
	Delta  decimal.Decimal `json:"delta"`
}

// ChangeType indicates the type of change
type ChangeType int

const (
	ChangeAdded     ChangeType = iota // Cost object only in the newer run
	ChangeRemoved                     // Cost object only in the older run
	ChangeModified                    // Cost or revenue changed
	ChangeUnchanged                   // No change within threshold
)

// String returns the change type name
func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	case ChangeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// MarshalText renders the change type by name
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Differ computes diffs between runs
type Differ struct {
	// Threshold is the absolute amount below which a change is ignored
	Threshold decimal.Decimal
}

// NewDiffer creates a new differ. A non-positive threshold counts every
// change, however small.
func NewDiffer(threshold decimal.Decimal) *Differ {
	if threshold.IsNegative() {
		threshold = decimal.Zero
	}
	return &Differ{Threshold: threshold}
}

// Diff computes the diff between before and after. Either run may be nil.
func (d *Differ) Diff(before, after *types.ExecutionState) *DiffResult {
	oldObjs := aggregate.FromState(before)
	newObjs := aggregate.FromState(after)
	oldTotals := aggregate.Total(oldObjs)
	newTotals := aggregate.Total(newObjs)

	res := &DiffResult{
		CostBefore:    oldTotals.Cost,
		CostAfter:     newTotals.Cost,
		Delta:         newTotals.Cost.Sub(oldTotals.Cost),
		RevenueBefore: oldTotals.Revenue,
		RevenueAfter:  newTotals.Revenue,
	}
	if oldTotals.Cost.IsPositive() {
		res.DeltaPercent = res.Delta.Div(oldTotals.Cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	ids := make(map[string]bool, len(oldObjs)+len(newObjs))
	for id := range oldObjs {
		ids[id] = true
	}
	for id := range newObjs {
		ids[id] = true
	}

	for _, id := range determinism.SortedKeys(ids) {
		o, inOld := oldObjs[id]
		n, inNew := newObjs[id]

		cd := &CostObjectDiff{TargetID: id}
		if inOld {
			cd.Before, cd.RevenueBefore = o.TotalCost, o.TotalRevenue
		}
		if inNew {
			cd.After, cd.RevenueAfter = n.TotalCost, n.TotalRevenue
		}
		cd.Delta = cd.After.Sub(cd.Before)

		switch {
		case !inOld:
			cd.ChangeType = ChangeAdded
			res.AddedCount++
		case !inNew:
			cd.ChangeType = ChangeRemoved
			res.RemovedCount++
		case d.changed(cd.Delta) || d.changed(cd.RevenueAfter.Sub(cd.RevenueBefore)):
			cd.ChangeType = ChangeModified
			res.ChangedCount++
		default:
			res.UnchangedCount++
			continue
		}
		res.CostObjects = append(res.CostObjects, cd)
	}

	res.Stages = stageDiffs(before, after)
	return res
}

func (d *Differ) changed(delta decimal.Decimal) bool {
	return delta.Abs().GreaterThan(d.Threshold)
}

func stageDiffs(before, after *types.ExecutionState) []StageDiff {
	moved := func(s *types.ExecutionState) map[types.Stage]decimal.Decimal {
		out := make(map[types.Stage]decimal.Decimal)
		if s == nil {
			return out
		}
		for _, st := range aggregate.ByStage(s.Results) {
			out[st.Stage] = st.Amount
		}
		return out
	}
	oldMoved, newMoved := moved(before), moved(after)

	var out []StageDiff
	for _, stage := range types.StageOrder {
		b, inOld := oldMoved[stage]
		a, inNew := newMoved[stage]
		if !inOld && !inNew {
			continue
		}
		out = append(out, StageDiff{Stage: stage, Before: b, After: a, Delta: a.Sub(b)})
	}
	return out
}
