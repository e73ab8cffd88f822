// Package guards - Run invariant checks
// Verifies a finished run still satisfies the conservation properties every
// stage promises. Check reports violations; Enforce panics on them.
package guards

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hospital-abc/core/types"
)

// Invariant names a property checked on a finished run
type Invariant string

const (
	// NonNegative: no result moves a negative amount
	NonNegative Invariant = "non_negative"

	// RatioSum: the ratios of one source within one stage sum to 1
	RatioSum Invariant = "ratio_sum"

	// CompletedStage: results only come from completed stages
	CompletedStage Invariant = "completed_stage"

	// UniqueIDs: result ids are unique within the run
	UniqueIDs Invariant = "unique_ids"

	// TotalAllocated: the run total equals the sum of its results
	TotalAllocated Invariant = "total_allocated"

	// StageOrder: completed stages follow the fixed stage order
	StageOrder Invariant = "stage_order"
)

// DefaultTolerance absorbs the division precision of normalized ratios
var DefaultTolerance = decimal.New(1, -9)

// Violation is one broken invariant
type Violation struct {
	Invariant Invariant   `json:"invariant"`
	Stage     types.Stage `json:"stage,omitempty"`
	SourceID  string      `json:"source_id,omitempty"`
	Message   string      `json:"message"`
}

func (v Violation) String() string {
	var loc []string
	if v.Stage != "" {
		loc = append(loc, string(v.Stage))
	}
	if v.SourceID != "" {
		loc = append(loc, v.SourceID)
	}
	if len(loc) == 0 {
		return fmt.Sprintf("%s: %s", v.Invariant, v.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", v.Invariant, strings.Join(loc, "/"), v.Message)
}

type sourceKey struct {
	stage  types.Stage
	source string
}

// Check returns every invariant the run violates, in a stable order
func Check(state *types.ExecutionState, tolerance decimal.Decimal) []Violation {
	if state == nil {
		return nil
	}
	var out []Violation

	completed := make(map[types.Stage]bool, len(state.StagesCompleted))
	last := -1
	for _, st := range state.StagesCompleted {
		completed[st] = true
		if st.Index() <= last {
			out = append(out, Violation{Invariant: StageOrder, Stage: st,
				Message: "stage completed out of order"})
		}
		last = st.Index()
	}

	seen := make(map[string]bool, len(state.Results))
	sums := make(map[sourceKey]decimal.Decimal)
	var keys []sourceKey
	total := decimal.Zero

	for _, r := range state.Results {
		total = total.Add(r.Amount)

		if r.Amount.IsNegative() {
			out = append(out, Violation{Invariant: NonNegative, Stage: r.Stage, SourceID: r.SourceID,
				Message: fmt.Sprintf("result %s moves %s to %s", r.ID, r.Amount, r.TargetID)})
		}
		if !completed[r.Stage] {
			out = append(out, Violation{Invariant: CompletedStage, Stage: r.Stage, SourceID: r.SourceID,
				Message: fmt.Sprintf("result %s belongs to a stage that did not complete", r.ID)})
		}
		if seen[r.ID] {
			out = append(out, Violation{Invariant: UniqueIDs, Stage: r.Stage, SourceID: r.SourceID,
				Message: fmt.Sprintf("result id %s repeated", r.ID)})
		}
		seen[r.ID] = true

		k := sourceKey{r.Stage, r.SourceID}
		if _, ok := sums[k]; !ok {
			keys = append(keys, k)
		}
		sums[k] = sums[k].Add(r.DriverRatio)
	}

	one := decimal.NewFromInt(1)
	for _, k := range keys {
		if sums[k].Sub(one).Abs().GreaterThan(tolerance) {
			out = append(out, Violation{Invariant: RatioSum, Stage: k.stage, SourceID: k.source,
				Message: fmt.Sprintf("ratios sum to %s", sums[k].StringFixed(6))})
		}
	}

	if !state.TotalAllocated.Equal(total) {
		out = append(out, Violation{Invariant: TotalAllocated,
			Message: fmt.Sprintf("recorded %s, results sum to %s", state.TotalAllocated, total)})
	}
	return out
}

// Enforce panics when the run violates any invariant
func Enforce(state *types.ExecutionState) {
	violations := Check(state, DefaultTolerance)
	if len(violations) == 0 {
		return
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	panic("INVARIANT VIOLATED: " + strings.Join(msgs, "; "))
}
