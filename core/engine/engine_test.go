package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/core/catalog"
	"hospital-abc/core/guards"
	"hospital-abc/core/mapping"
	"hospital-abc/core/types"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func putValues(t *testing.T, c *catalog.Catalog, driverID string, kind types.EntityType, values map[string]string) {
	t.Helper()
	for id, v := range values {
		require.NoError(t, c.PutDriverValue(context.Background(), types.DriverValue{
			DriverID: driverID, SourceID: id, SourceType: kind, Value: dec(v),
		}))
	}
}

// hospital builds a small catalog: three departments measured by area, two
// activities measured by time and two cost objects measured by patients.
func hospital(t *testing.T) *catalog.Catalog {
	t.Helper()
	ctx := context.Background()
	c := catalog.New()
	c.SetClock(func() time.Time { return epoch })

	for _, d := range []types.Driver{
		{ID: "area", Name: "Floor Area", Category: types.CategoryArea, Basis: types.BasisCausal, Unit: "m2", Active: true},
		{ID: "time", Name: "Staff Time", Category: types.CategoryTime, Basis: types.BasisCausal, Unit: "min", Active: true},
		{ID: "patients", Name: "Patient Days", Category: types.CategoryPatient, Basis: types.BasisBenefit, Active: true},
	} {
		require.NoError(t, c.PutDriver(ctx, d))
	}

	putValues(t, c, "area", types.EntityDepartment, map[string]string{"dept_a": "250", "dept_b": "200", "dept_c": "150"})
	putValues(t, c, "time", types.EntityActivity, map[string]string{"act_nursing": "60", "act_lab": "40"})
	putValues(t, c, "patients", types.EntityCostObject, map[string]string{"pc4": "3", "checkup_center": "1"})

	require.NoError(t, c.PutRule(ctx, types.AllocationRule{
		ID: "rta-departments", Stage: types.StageRTA, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityDepartment, SourceIDs: []string{"dept_a", "dept_b", "dept_c"},
		TargetType: types.EntityActivity, TargetIDs: []string{"act_nursing", "act_lab"},
		DriverID: "time",
	}))
	return c
}

func newEngine(c *catalog.Catalog, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return epoch }),
		WithRunIDs(func() string { return "run-1" }),
	}
	return New(c, append(base, opts...)...)
}

func electricity() map[types.Stage]types.StageConfig {
	return map[types.Stage]types.StageConfig{
		types.StageRTR: {Pools: []types.CostPool{
			{ID: "electricity", Name: "Electricity", Type: types.EntityAccount, Amount: dec("2450000")},
		}},
	}
}

func amountsByTarget(results []types.AllocationResult) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range results {
		out[r.TargetID] = out[r.TargetID].Add(r.Amount)
	}
	return out
}

func sum(results []types.AllocationResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.Amount)
	}
	return total
}

func TestRTRAllocatesByArea(t *testing.T) {
	e := newEngine(hospital(t))

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, electricity(), nil)

	require.Empty(t, state.Errors)
	assert.Equal(t, types.OutcomeCompleted, state.Outcome())
	assert.Equal(t, []types.Stage{types.StageRTR}, state.StagesCompleted)
	require.Len(t, state.Results, 3)

	byTarget := make(map[string]types.AllocationResult)
	for _, r := range state.Results {
		byTarget[r.TargetID] = r
		assert.Equal(t, types.StageRTR, r.Stage)
		assert.Equal(t, "electricity", r.SourceID)
		assert.Equal(t, types.EntityAccount, r.SourceType)
		assert.Equal(t, types.EntityDepartment, r.TargetType)
		assert.Equal(t, "area", r.DriverID)
		assert.Equal(t, "proportional_area", r.CalculationMethod)
		assert.Equal(t, epoch, r.ExecutionTime)
	}

	assert.Equal(t, "0.4167", byTarget["dept_a"].DriverRatio.StringFixed(4))
	assert.Equal(t, "0.3333", byTarget["dept_b"].DriverRatio.StringFixed(4))
	assert.Equal(t, "0.2500", byTarget["dept_c"].DriverRatio.StringFixed(4))

	assert.Equal(t, "1020833.33", byTarget["dept_a"].Amount.StringFixed(2))
	assert.Equal(t, "816666.67", byTarget["dept_b"].Amount.StringFixed(2))
	assert.Equal(t, "612500.00", byTarget["dept_c"].Amount.StringFixed(2))
	assert.Equal(t, "2450000.00", sum(state.Results).StringFixed(2))
	assert.True(t, state.TotalAllocated.Equal(sum(state.Results)))
	assert.Empty(t, guards.Check(state, guards.DefaultTolerance))

	assert.Contains(t, byTarget["dept_a"].Notes, "Electricity")
	assert.Contains(t, byTarget["dept_a"].Notes, "41.67%")
	assert.Nil(t, state.CurrentStage)
	assert.False(t, state.EndTime.IsZero())
}

func TestRTRRoundingKeepsPoolTotal(t *testing.T) {
	opts := DefaultOptions()
	opts.Rounding = types.Rounding{Method: types.RoundingHalfUp, Precision: 0}
	e := newEngine(hospital(t), WithOptions(opts))

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, electricity(), nil)
	require.Empty(t, state.Errors)

	got := amountsByTarget(state.Results)
	assert.Equal(t, "1020833", got["dept_a"].String())
	assert.Equal(t, "816667", got["dept_b"].String())
	assert.Equal(t, "612500", got["dept_c"].String())
	assert.Equal(t, "2450000", sum(state.Results).String())
}

func TestRoundingResidualGoesToLargestShare(t *testing.T) {
	c := catalog.New()
	ctx := context.Background()
	require.NoError(t, c.PutDriver(ctx, types.Driver{
		ID: "area", Name: "Floor Area", Category: types.CategoryArea, Basis: types.BasisCausal, Active: true,
	}))
	putValues(t, c, "area", types.EntityDepartment, map[string]string{"x": "1", "y": "1", "z": "1"})

	opts := DefaultOptions()
	opts.Rounding = types.Rounding{Method: types.RoundingBankers, Precision: 2}
	e := newEngine(c, WithOptions(opts))

	state := e.ExecuteWorkflow(ctx, []types.Stage{types.StageRTR}, map[types.Stage]types.StageConfig{
		types.StageRTR: {Pools: []types.CostPool{{ID: "water", Amount: dec("100")}}},
	}, nil)
	require.Empty(t, state.Errors)
	assert.Equal(t, "100", sum(state.Results).String())
}

func TestDependencyViolationRejectsRun(t *testing.T) {
	e := newEngine(hospital(t))

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageATC}, nil, nil)

	require.Len(t, state.Errors, 1)
	assert.Equal(t, "stage atc requires stage ata2 to be enabled", state.Errors[0])
	assert.Empty(t, state.Results)
	assert.Empty(t, state.StagesCompleted)
	assert.False(t, state.Validated)
	assert.Equal(t, types.OutcomeRejected, state.Outcome())
	assert.False(t, state.EndTime.IsZero())
}

func TestStageFailureKeepsEarlierResults(t *testing.T) {
	e := newEngine(hospital(t))
	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{
		DriverID: "missing",
		Pools:    []types.CostPool{{ID: "dept_a", Amount: dec("10")}},
	}

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, cfg, nil)

	assert.Equal(t, []types.Stage{types.StageRTR}, state.StagesCompleted)
	require.Len(t, state.Errors, 1)
	assert.True(t, strings.HasPrefix(state.Errors[0], "rta failed: "), state.Errors[0])
	assert.Contains(t, state.Errors[0], "missing")
	assert.Len(t, state.Results, 3)
	for _, r := range state.Results {
		assert.Equal(t, types.StageRTR, r.Stage)
	}
	require.NotNil(t, state.CurrentStage)
	assert.Equal(t, types.StageRTA, *state.CurrentStage)
	assert.Equal(t, types.OutcomePartial, state.Outcome())
}

func TestDirectStagesAssignWholePool(t *testing.T) {
	e := newEngine(hospital(t))
	cfg := map[types.Stage]types.StageConfig{
		types.StageETC: {Pools: []types.CostPool{
			{ID: "drugs_pc4", Amount: dec("150000"), TargetID: "pc4"},
			{ID: "supplies_pc4", Amount: dec("0"), TargetID: "pc4"},
		}},
		types.StageXTC: {Pools: []types.CostPool{
			{ID: "checkup_fees", Amount: dec("50000000"), TargetID: "checkup_center"},
		}},
	}

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageXTC, types.StageETC}, cfg, nil)

	require.Empty(t, state.Errors)
	assert.Equal(t, []types.Stage{types.StageETC, types.StageXTC}, state.StagesCompleted)
	require.Len(t, state.Results, 3)
	for _, r := range state.Results {
		assert.True(t, r.DriverRatio.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, types.EntityCostObject, r.TargetType)
	}
	assert.Equal(t, "direct_assignment", state.Results[0].CalculationMethod)
	assert.Equal(t, "revenue_matching", state.Results[2].CalculationMethod)
	assert.Equal(t, types.EntityRevenue, state.Results[2].SourceType)
	assert.True(t, state.Results[2].IsRevenue())
}

func TestDirectStageWithoutTargetFails(t *testing.T) {
	e := newEngine(hospital(t))
	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageETC}, map[types.Stage]types.StageConfig{
		types.StageETC: {Pools: []types.CostPool{{ID: "drugs", Amount: dec("1")}}},
	}, nil)

	require.Len(t, state.Errors, 1)
	assert.Equal(t, "etc failed: no target configured for pool drugs", state.Errors[0])
}

func TestNegativePoolFailsStage(t *testing.T) {
	e := newEngine(hospital(t))
	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, map[types.Stage]types.StageConfig{
		types.StageRTR: {Pools: []types.CostPool{{ID: "refund", Amount: dec("-5")}}},
	}, nil)

	require.Len(t, state.Errors, 1)
	assert.Contains(t, state.Errors[0], "negative amount")
	assert.Empty(t, state.Results)
}

func TestEmptyStageCompletesWithWarning(t *testing.T) {
	e := newEngine(hospital(t))
	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, nil, nil)

	require.Empty(t, state.Errors)
	assert.Equal(t, []types.Stage{types.StageRTR}, state.StagesCompleted)
	assert.Equal(t, []string{"rtr: no source pools configured"}, state.Warnings)
}

func TestDriverStageUsesRuleTargets(t *testing.T) {
	e := newEngine(hospital(t))
	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_a", Amount: dec("1000")}}}

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, cfg, nil)
	require.Empty(t, state.Errors)

	rta := state.ResultsFor(types.StageRTA)
	require.Len(t, rta, 2)
	got := amountsByTarget(rta)
	assert.Equal(t, "600", got["act_nursing"].String())
	assert.Equal(t, "400", got["act_lab"].String())
	assert.Equal(t, "time_based", rta[0].CalculationMethod)
}

func TestUnscopedPoolOutsideFirstStageFails(t *testing.T) {
	e := newEngine(hospital(t))
	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_z", Amount: dec("1000")}}}

	state := e.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, cfg, nil)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "rta failed: no targets configured for pool dept_z", state.Errors[0])
}

func TestRuleRatioStageNormalizesAndWarns(t *testing.T) {
	c := hospital(t)
	ctx := context.Background()
	require.NoError(t, c.PutRule(ctx, types.AllocationRule{
		ID: "ata1-support", Stage: types.StageATA1, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityActivity, SourceIDs: []string{"act_lab"},
		TargetType: types.EntityActivity, TargetIDs: []string{"act_nursing", "act_ward"},
		AllocationRatios: []types.AllocationRatio{
			{SourceID: "act_lab", TargetID: "act_nursing", Ratio: dec("0.6")},
			{SourceID: "act_lab", TargetID: "act_ward", Ratio: dec("0.6")},
		},
	}))

	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_a", Amount: dec("1000")}}}
	cfg[types.StageATA1] = types.StageConfig{Pools: []types.CostPool{{ID: "act_lab", Amount: dec("500")}}}

	state := newEngine(c).ExecuteWorkflow(ctx, []types.Stage{types.StageRTR, types.StageRTA, types.StageATA1}, cfg, nil)
	require.Empty(t, state.Errors)

	ata1 := state.ResultsFor(types.StageATA1)
	require.Len(t, ata1, 2)
	for _, r := range ata1 {
		assert.Equal(t, "250", r.Amount.String())
		assert.Equal(t, "0.5", r.DriverRatio.String())
		assert.Equal(t, "internal_ratio", r.CalculationMethod)
	}
	require.Len(t, state.Warnings, 1)
	assert.Contains(t, state.Warnings[0], "ratios for act_lab sum to 1.2000")
}

// extraRules serves rules the catalog writers would refuse
type extraRules struct {
	*catalog.Catalog
	rules []*types.AllocationRule
}

func (r extraRules) ListRules(ctx context.Context, filter catalog.RuleFilter) ([]*types.AllocationRule, error) {
	rules, err := r.Catalog.ListRules(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, rule := range r.rules {
		if filter.Stage == "" || rule.Stage == filter.Stage {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func TestNegativeRuleRatioFailsStage(t *testing.T) {
	repo := extraRules{Catalog: hospital(t), rules: []*types.AllocationRule{{
		ID: "ata1-lab", Stage: types.StageATA1, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityActivity, SourceIDs: []string{"act_lab"},
		TargetType: types.EntityActivity, TargetIDs: []string{"a", "b", "c"},
		AllocationRatios: []types.AllocationRatio{
			{SourceID: "act_lab", TargetID: "a", Ratio: dec("0.6")},
			{SourceID: "act_lab", TargetID: "b", Ratio: dec("0.6")},
			{SourceID: "act_lab", TargetID: "c", Ratio: dec("-0.2")},
		},
	}}}

	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_a", Amount: dec("1000")}}}
	cfg[types.StageATA1] = types.StageConfig{Pools: []types.CostPool{{ID: "act_lab", Amount: dec("1000")}}}

	state := New(repo, WithClock(func() time.Time { return epoch })).ExecuteWorkflow(context.Background(),
		[]types.Stage{types.StageRTR, types.StageRTA, types.StageATA1}, cfg, nil)

	require.Len(t, state.Errors, 1)
	assert.Equal(t, "ata1 failed: rule ata1-lab ratio act_lab -> c is negative", state.Errors[0])
	assert.Equal(t, types.OutcomePartial, state.Outcome())
	assert.Empty(t, state.ResultsFor(types.StageATA1))
	assert.Empty(t, guards.Check(state, guards.DefaultTolerance))
}

func TestUnscopedPoolIgnoresOtherEntityTypes(t *testing.T) {
	c := hospital(t)
	putValues(t, c, "area", types.EntityActivity, map[string]string{"act_nursing": "100"})

	state := newEngine(c).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, electricity(), nil)
	require.Empty(t, state.Errors)
	require.Len(t, state.Results, 3)

	got := amountsByTarget(state.Results)
	assert.NotContains(t, got, "act_nursing")
	assert.Equal(t, "1020833.33", got["dept_a"].StringFixed(2))
	for _, r := range state.Results {
		assert.Equal(t, types.EntityDepartment, r.TargetType)
	}
}

func TestRuleStageWithoutRatiosFails(t *testing.T) {
	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_a", Amount: dec("1000")}}}
	cfg[types.StageATA1] = types.StageConfig{Pools: []types.CostPool{{ID: "act_lab", Amount: dec("500")}}}

	state := newEngine(hospital(t)).ExecuteWorkflow(context.Background(),
		[]types.Stage{types.StageRTR, types.StageRTA, types.StageATA1}, cfg, nil)

	require.Len(t, state.Errors, 1)
	assert.Equal(t, "ata1 failed: no allocation ratios configured for pool act_lab", state.Errors[0])
	assert.Equal(t, []types.Stage{types.StageRTR, types.StageRTA}, state.StagesCompleted)
}

func TestParallelMatchesSequential(t *testing.T) {
	c := hospital(t)
	cfg := map[types.Stage]types.StageConfig{types.StageRTR: {}}
	pools := make([]types.CostPool, 0, 20)
	for i := 0; i < 20; i++ {
		pools = append(pools, types.CostPool{ID: fmt.Sprintf("account_%02d", i), Amount: decimal.NewFromInt(int64(1000 * (i + 1)))})
	}
	cfg[types.StageRTR] = types.StageConfig{Pools: pools}

	sequential := newEngine(c).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, cfg, nil)

	opts := DefaultOptions()
	opts.Parallelism = 4
	parallel := newEngine(c, WithOptions(opts)).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, cfg, nil)

	require.Empty(t, sequential.Errors)
	require.Empty(t, parallel.Errors)
	require.Len(t, parallel.Results, len(sequential.Results))
	for i := range sequential.Results {
		assert.Equal(t, sequential.Results[i].ID, parallel.Results[i].ID)
		assert.Equal(t, sequential.Results[i].TargetID, parallel.Results[i].TargetID)
		assert.True(t, sequential.Results[i].Amount.Equal(parallel.Results[i].Amount))
	}
}

func TestProgressReportsStartAndFinish(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[types.Stage][]int)
	progress := func(stage types.Stage, pct int) {
		mu.Lock()
		defer mu.Unlock()
		seen[stage] = append(seen[stage], pct)
	}

	cfg := electricity()
	cfg[types.StageRTR] = types.StageConfig{Pools: append(cfg[types.StageRTR].Pools,
		types.CostPool{ID: "water", Amount: dec("1000")})}

	state := newEngine(hospital(t)).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, cfg, progress)
	require.Empty(t, state.Errors)

	got := seen[types.StageRTR]
	require.NotEmpty(t, got)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, 100, got[len(got)-1])
	assert.Contains(t, got, 50)
}

func TestCancelledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := newEngine(hospital(t)).ExecuteWorkflow(ctx, []types.Stage{types.StageRTR}, electricity(), nil)

	require.Len(t, state.Errors, 1)
	assert.Contains(t, state.Errors[0], "rtr failed: run cancelled")
	assert.Empty(t, state.StagesCompleted)
	assert.Equal(t, types.OutcomePartial, state.Outcome())
}

func TestChainingCarriesDepartmentBalances(t *testing.T) {
	opts := DefaultOptions()
	opts.ChainStages = true
	eng := newEngine(hospital(t), WithOptions(opts))

	state := eng.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, electricity(), nil)
	require.Empty(t, state.Errors)

	rta := state.ResultsFor(types.StageRTA)
	require.Len(t, rta, 6)
	assert.Equal(t, "2450000.00", sum(rta).StringFixed(2))

	got := amountsByTarget(rta)
	assert.Equal(t, "1470000.00", got["act_nursing"].StringFixed(2))
	assert.Equal(t, "980000.00", got["act_lab"].StringFixed(2))
	assert.NotPanics(t, func() { guards.Enforce(state) })
}

func TestChainingRetainsPoolsWithoutPath(t *testing.T) {
	c := hospital(t)
	require.NoError(t, c.PutRule(context.Background(), types.AllocationRule{
		ID: "rta-departments", Stage: types.StageRTA, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityDepartment, SourceIDs: []string{"dept_a"},
		TargetType: types.EntityActivity, TargetIDs: []string{"act_nursing"},
		DriverID: "time",
	}))

	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{ChainFromPrevious: true}

	state := newEngine(c).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, cfg, nil)
	require.Empty(t, state.Errors)

	rta := state.ResultsFor(types.StageRTA)
	require.Len(t, rta, 1)
	assert.Equal(t, "dept_a", rta[0].SourceID)
	assert.Contains(t, state.Warnings, "rta: 2 chained pools had no allocation path and kept their balance")
}

func TestDeviationWarning(t *testing.T) {
	c := catalog.New()
	ctx := context.Background()
	require.NoError(t, c.PutDriver(ctx, types.Driver{
		ID: "area", Name: "Floor Area", Category: types.CategoryArea, Basis: types.BasisCausal, Active: true,
	}))
	values := map[string]string{"big": "1000"}
	for i := 0; i < 9; i++ {
		values[fmt.Sprintf("small_%d", i)] = "10"
	}
	putValues(t, c, "area", types.EntityDepartment, values)

	state := newEngine(c).ExecuteWorkflow(ctx, []types.Stage{types.StageRTR}, electricity(), nil)
	require.Empty(t, state.Errors)
	require.Len(t, state.Warnings, 1)
	assert.Contains(t, state.Warnings[0], "driver area value for big")
}

func TestDeviationWarningsNeedThreeValues(t *testing.T) {
	pool := types.CostPool{ID: "p"}
	two := []weight{{targetID: "a", value: dec("1")}, {targetID: "b", value: dec("100")}}
	assert.Empty(t, deviationWarnings("d", pool, two, 0.5))

	flat := []weight{{targetID: "a", value: dec("5")}, {targetID: "b", value: dec("5")}, {targetID: "c", value: dec("5")}}
	assert.Empty(t, deviationWarnings("d", pool, flat, 0.5))

	assert.Empty(t, deviationWarnings("d", pool, []weight{
		{targetID: "a", value: dec("1")}, {targetID: "b", value: dec("2")}, {targetID: "c", value: dec("90")},
	}, 0))
}

func TestOutOfSyncMappingWarns(t *testing.T) {
	c := hospital(t)
	ctx := context.Background()
	require.NoError(t, c.PutRule(ctx, types.AllocationRule{
		ID: "rtr-electricity", Stage: types.StageRTR, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityAccount, SourceIDs: []string{"electricity"},
		TargetType: types.EntityDepartment, TargetIDs: []string{"dept_a", "dept_b", "dept_c"},
		DriverID: "area",
	}))
	reg := mapping.NewRegistry(c)
	reg.Put(types.DriverMapping{ID: "m1", DriverID: "area", AllocationRuleID: "rtr-electricity", Active: true})

	state := newEngine(c, WithMappings(reg)).ExecuteWorkflow(ctx, []types.Stage{types.StageRTR}, electricity(), nil)
	require.Empty(t, state.Errors)
	assert.Contains(t, state.Warnings, "mapping m1: rule rtr-electricity is out of sync with driver area")

	_, err := reg.SyncDriverMapping(ctx, "m1")
	require.NoError(t, err)

	state = newEngine(c, WithMappings(reg)).ExecuteWorkflow(ctx, []types.Stage{types.StageRTR}, electricity(), nil)
	assert.Empty(t, state.Warnings)
}

func TestInactiveRulesIgnored(t *testing.T) {
	c := hospital(t)
	require.NoError(t, c.PutRule(context.Background(), types.AllocationRule{
		ID: "rta-departments", Stage: types.StageRTA, Method: types.MethodProportional, Active: false,
		SourceType: types.EntityDepartment, SourceIDs: []string{"dept_a"},
		TargetType: types.EntityActivity, TargetIDs: []string{"act_nursing"},
		DriverID: "time",
	}))
	cfg := electricity()
	cfg[types.StageRTA] = types.StageConfig{Pools: []types.CostPool{{ID: "dept_a", Amount: dec("10")}}}

	state := newEngine(c).ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR, types.StageRTA}, cfg, nil)
	require.Len(t, state.Errors, 1)
	assert.Contains(t, state.Errors[0], "no targets configured for pool dept_a")
}

func TestRunsAreIndependent(t *testing.T) {
	eng := newEngine(hospital(t))
	first := eng.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, electricity(), nil)
	second := eng.ExecuteWorkflow(context.Background(), []types.Stage{types.StageRTR}, electricity(), nil)

	require.Len(t, first.Results, 3)
	require.Len(t, second.Results, 3)
	assert.NotSame(t, first, second)
}
