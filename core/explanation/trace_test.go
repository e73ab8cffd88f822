package explanation

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/core/types"
)

func flow(stage types.Stage, source, target, amount, ratio, driver string) types.AllocationResult {
	return types.AllocationResult{
		Stage: stage, SourceID: source, TargetID: target, DriverID: driver,
		Amount: decimal.RequireFromString(amount), DriverRatio: decimal.RequireFromString(ratio),
	}
}

func chainedRun() *types.ExecutionState {
	return &types.ExecutionState{Results: []types.AllocationResult{
		flow(types.StageRTR, "electricity", "dept_a", "600", "0.6", "area"),
		flow(types.StageRTR, "electricity", "dept_b", "400", "0.4", "area"),
		flow(types.StageRTA, "dept_a", "act_nursing", "600", "1", "time"),
		flow(types.StageATC, "act_nursing", "pc4", "450", "0.75", "patients"),
		flow(types.StageATC, "act_nursing", "checkup_center", "150", "0.25", "patients"),
	}}
}

func TestExplainFollowsChain(t *testing.T) {
	e := Explain(chainedRun(), "pc4")

	assert.Equal(t, "450", e.Total.String())
	require.Len(t, e.Contributions, 1)
	atc := e.Contributions[0]
	assert.Equal(t, "act_nursing", atc.Result.SourceID)
	assert.Equal(t, "450", atc.Attributed.String())

	require.Len(t, atc.Upstream, 1)
	rta := atc.Upstream[0]
	assert.Equal(t, "dept_a", rta.Result.SourceID)
	assert.Equal(t, "450", rta.Attributed.StringFixed(0))

	require.Len(t, rta.Upstream, 1)
	rtr := rta.Upstream[0]
	assert.Equal(t, "electricity", rtr.Result.SourceID)
	assert.Equal(t, "450", rtr.Attributed.StringFixed(0))
	assert.Empty(t, rtr.Upstream)

	assert.Equal(t, []types.Stage{types.StageRTR, types.StageRTA, types.StageATC}, e.Stages())
}

func TestExplainIgnoresLaterStages(t *testing.T) {
	state := chainedRun()
	// a later flow into dept_a must not feed the rta contribution
	state.Results = append(state.Results, flow(types.StageXTC, "fees", "dept_a", "50", "1", ""))

	e := Explain(state, "pc4")
	require.Len(t, e.Contributions[0].Upstream, 1)
	assert.Len(t, e.Contributions[0].Upstream[0].Upstream, 1)
}

func TestExplainUnknownEntity(t *testing.T) {
	e := Explain(chainedRun(), "icu")
	assert.True(t, e.Total.IsZero())
	assert.Empty(t, e.Contributions)
	assert.Equal(t, "icu received no allocations\n", e.ToNarrative())

	assert.Empty(t, Explain(nil, "pc4").Contributions)
}

func TestNarrative(t *testing.T) {
	text := Explain(chainedRun(), "pc4").ToNarrative()

	assert.Contains(t, text, "pc4 received 450.00\n")
	assert.Contains(t, text, "  └─ [atc] act_nursing → pc4: 450.00 (75.00% by patients)\n")
	assert.Contains(t, text, "    └─ [rta] dept_a → act_nursing: 600.00 (100.00% by time), 450.00 reaches pc4\n")
	assert.Contains(t, text, "      └─ [rtr] electricity → dept_a: 600.00 (60.00% by area), 450.00 reaches pc4\n")
}

func TestToJSON(t *testing.T) {
	data, err := Explain(chainedRun(), "dept_b").ToJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "dept_b", doc["entity_id"])
	assert.Equal(t, "400", doc["total"])
}
