package guards

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/core/types"
)

func result(id string, stage types.Stage, source, target, amount, ratio string) types.AllocationResult {
	return types.AllocationResult{
		ID: id, Stage: stage, SourceID: source, TargetID: target,
		Amount: decimal.RequireFromString(amount), DriverRatio: decimal.RequireFromString(ratio),
	}
}

func validRun() *types.ExecutionState {
	state := types.NewExecutionState("run-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	state.StagesCompleted = []types.Stage{types.StageRTR, types.StageRTA}
	state.Results = []types.AllocationResult{
		result("r1", types.StageRTR, "electricity", "dept_a", "600", "0.6"),
		result("r2", types.StageRTR, "electricity", "dept_b", "400", "0.4"),
		result("r3", types.StageRTA, "dept_a", "act_nursing", "600", "1"),
	}
	state.TotalAllocated = decimal.NewFromInt(1600)
	return state
}

func TestCheckValidRun(t *testing.T) {
	assert.Empty(t, Check(validRun(), DefaultTolerance))
	assert.Empty(t, Check(nil, DefaultTolerance))
	assert.NotPanics(t, func() { Enforce(validRun()) })
}

func TestCheckViolations(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *types.ExecutionState)
		invariant Invariant
	}{
		{
			name: "negative amount",
			mutate: func(s *types.ExecutionState) {
				s.Results[2].Amount = decimal.NewFromInt(-600)
				s.TotalAllocated = decimal.NewFromInt(400)
			},
			invariant: NonNegative,
		},
		{
			name:      "ratios short of one",
			mutate:    func(s *types.ExecutionState) { s.Results[1].DriverRatio = decimal.RequireFromString("0.3") },
			invariant: RatioSum,
		},
		{
			name:      "stage not completed",
			mutate:    func(s *types.ExecutionState) { s.StagesCompleted = s.StagesCompleted[:1] },
			invariant: CompletedStage,
		},
		{
			name:      "duplicate id",
			mutate:    func(s *types.ExecutionState) { s.Results[1].ID = "r1" },
			invariant: UniqueIDs,
		},
		{
			name:      "total mismatch",
			mutate:    func(s *types.ExecutionState) { s.TotalAllocated = decimal.NewFromInt(1000) },
			invariant: TotalAllocated,
		},
		{
			name: "stage order",
			mutate: func(s *types.ExecutionState) {
				s.StagesCompleted = []types.Stage{types.StageRTA, types.StageRTR}
			},
			invariant: StageOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validRun()
			tt.mutate(state)

			violations := Check(state, DefaultTolerance)
			require.Len(t, violations, 1)
			assert.Equal(t, tt.invariant, violations[0].Invariant)
			assert.Panics(t, func() { Enforce(state) })
		})
	}
}

func TestCheckToleratesDivisionDust(t *testing.T) {
	state := validRun()
	state.Results[0].DriverRatio = decimal.RequireFromString("0.6000000000000001")
	assert.Empty(t, Check(state, DefaultTolerance))
	assert.Len(t, Check(state, decimal.Zero), 1)
}

func TestViolationString(t *testing.T) {
	v := Violation{Invariant: RatioSum, Stage: types.StageRTR, SourceID: "electricity", Message: "ratios sum to 0.9"}
	assert.Equal(t, "ratio_sum [rtr/electricity]: ratios sum to 0.9", v.String())

	v = Violation{Invariant: TotalAllocated, Message: "off"}
	assert.Equal(t, "total_allocated: off", v.String())
}
