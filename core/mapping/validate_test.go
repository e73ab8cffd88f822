package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/core/types"
)

func hasIssue(v types.MappingValidation, field string, sev types.Severity) bool {
	for _, issue := range v.Errors {
		if issue.Field == field && issue.Severity == sev {
			return true
		}
	}
	return false
}

func TestValidateMappingCoverage(t *testing.T) {
	_, reg, _ := fixture(t)

	tests := []struct {
		name     string
		mapping  types.DriverMapping
		valid    bool
		coverage int
	}{
		{
			name:     "synced and active",
			mapping:  types.DriverMapping{DriverID: "area", AllocationRuleID: "rtr-electricity", SyncStatus: types.SyncSynced, Active: true},
			valid:    true,
			coverage: 95,
		},
		{
			name:     "out of sync",
			mapping:  types.DriverMapping{DriverID: "area", AllocationRuleID: "rtr-electricity", SyncStatus: types.SyncOutOfSync, Active: true},
			valid:    true,
			coverage: 60,
		},
		{
			name:     "synced but inactive",
			mapping:  types.DriverMapping{DriverID: "area", AllocationRuleID: "rtr-electricity", SyncStatus: types.SyncSynced},
			valid:    true,
			coverage: 80,
		},
		{
			name:     "missing references",
			mapping:  types.DriverMapping{SyncStatus: types.SyncSynced, Active: true},
			valid:    false,
			coverage: 95,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := reg.ValidateMapping(context.Background(), &tt.mapping)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.Equal(t, tt.coverage, v.CoverageScore)
		})
	}
}

func TestValidateMappingMissingFields(t *testing.T) {
	_, reg, _ := fixture(t)
	v := reg.ValidateMapping(context.Background(), &types.DriverMapping{})

	assert.False(t, v.IsValid)
	assert.True(t, hasIssue(v, "driver_id", types.SeverityError))
	assert.True(t, hasIssue(v, "allocation_rule_id", types.SeverityError))
}

func TestValidateMappingOutOfSyncRecommendsSync(t *testing.T) {
	_, reg, _ := fixture(t)
	v := reg.ValidateMapping(context.Background(), &types.DriverMapping{
		DriverID: "area", AllocationRuleID: "rtr-electricity", SyncStatus: types.SyncOutOfSync,
	})

	assert.True(t, v.IsValid)
	assert.True(t, hasIssue(v, "sync_status", types.SeverityWarning))
	require.Len(t, v.Recommendations, 1)
	assert.Contains(t, v.Recommendations[0], "sync")
}

func TestValidateMappingRuleChecks(t *testing.T) {
	ctx := context.Background()
	cat, reg, _ := fixture(t)

	require.NoError(t, cat.UpdateRuleRatios(ctx, "rtr-electricity", []types.AllocationRatio{
		{SourceID: "electricity", TargetID: "dept_a", Ratio: decimal.NewFromFloat(0.6)},
		{SourceID: "electricity", TargetID: "dept_b", Ratio: decimal.NewFromFloat(0.3)},
	}, time.Now()))
	require.NoError(t, cat.PutDriver(ctx, types.Driver{
		ID: "area", Name: "Floor Area", Category: types.CategoryArea, Basis: types.BasisCausal, Active: false,
	}))

	v := reg.ValidateMapping(ctx, &types.DriverMapping{
		DriverID:         "area",
		AllocationRuleID: "rtr-electricity",
		SyncStatus:       types.SyncSynced,
		Config: types.MappingConfig{
			ValidationRules: []string{types.CheckRatioSum, types.CheckNonZeroTotal, types.CheckActiveDriver, "bogus"},
		},
	})

	assert.True(t, v.IsValid)
	assert.True(t, hasIssue(v, "allocation_ratios", types.SeverityWarning))
	assert.True(t, hasIssue(v, "driver_id", types.SeverityWarning))
	assert.True(t, hasIssue(v, "validation_rules", types.SeverityInfo))
	assert.False(t, hasIssue(v, "driver_values", types.SeverityError))
}

func TestValidateMappingZeroTotalIsError(t *testing.T) {
	ctx := context.Background()
	cat, reg, _ := fixture(t)
	require.NoError(t, cat.PutRule(ctx, types.AllocationRule{
		ID: "rtr-ghost", Stage: types.StageRTR, Method: types.MethodProportional, Active: true,
		SourceType: types.EntityAccount, SourceIDs: []string{"water"},
		TargetType: types.EntityDepartment, TargetIDs: []string{"dept_x"}, DriverID: "area",
	}))

	v := reg.ValidateMapping(ctx, &types.DriverMapping{
		DriverID: "area", AllocationRuleID: "rtr-ghost", SyncStatus: types.SyncSynced,
		Config: types.MappingConfig{ValidationRules: []string{types.CheckNonZeroTotal}},
	})
	assert.False(t, v.IsValid)
	assert.True(t, hasIssue(v, "driver_values", types.SeverityError))
}
