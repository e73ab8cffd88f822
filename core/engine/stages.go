package engine

import (
	"fmt"

	"hospital-abc/core/types"
)

// weightSource is where a stage gets its allocation weights
type weightSource int

const (
	// weightsDriver uses driver values measured on the targets
	weightsDriver weightSource = iota
	// weightsRule uses the fixed ratios stored on the stage's rules
	weightsRule
	// weightsDirect assigns each pool to one target at ratio 1
	weightsDirect
)

// stageSpec describes how one stage allocates
type stageSpec struct {
	stage    types.Stage
	source   types.EntityType
	target   types.EntityType
	method   types.AllocationMethod
	weights  weightSource
	category types.DriverCategory // default driver category for weightsDriver
	tag      string               // calculation_method on emitted results
	label    string
}

var stageSpecs = map[types.Stage]stageSpec{
	types.StageRTR: {
		stage: types.StageRTR, source: types.EntityAccount, target: types.EntityDepartment,
		method: types.MethodProportional, weights: weightsDriver, category: types.CategoryArea,
		tag: "proportional_area", label: "Resource→Resource",
	},
	types.StageRTA: {
		stage: types.StageRTA, source: types.EntityDepartment, target: types.EntityActivity,
		method: types.MethodProportional, weights: weightsDriver, category: types.CategoryTime,
		tag: "time_based", label: "Resource→Activity",
	},
	types.StageATA1: {
		stage: types.StageATA1, source: types.EntityActivity, target: types.EntityActivity,
		method: types.MethodProportional, weights: weightsRule,
		tag: "internal_ratio", label: "Activity→Activity (same department)",
	},
	types.StageATA2: {
		stage: types.StageATA2, source: types.EntityActivity, target: types.EntityActivity,
		method: types.MethodReciprocal, weights: weightsRule,
		tag: "reciprocal_ratio", label: "Activity→Activity (cross department)",
	},
	types.StageATC: {
		stage: types.StageATC, source: types.EntityActivity, target: types.EntityCostObject,
		method: types.MethodProportional, weights: weightsDriver, category: types.CategoryPatient,
		tag: "patient_based", label: "Activity→Cost Object",
	},
	types.StageRTC: {
		stage: types.StageRTC, source: types.EntityAccount, target: types.EntityCostObject,
		method: types.MethodDirect, weights: weightsDirect,
		tag: "direct_allocation", label: "Resource→Cost Object",
	},
	types.StageETC: {
		stage: types.StageETC, source: types.EntityAccount, target: types.EntityCostObject,
		method: types.MethodDirect, weights: weightsDirect,
		tag: "direct_assignment", label: "Direct cost attribution",
	},
	types.StageXTC: {
		stage: types.StageXTC, source: types.EntityRevenue, target: types.EntityCostObject,
		method: types.MethodDirect, weights: weightsDirect,
		tag: "revenue_matching", label: "Direct revenue attribution",
	},
}

func specFor(stage types.Stage) (stageSpec, error) {
	spec, ok := stageSpecs[stage]
	if !ok {
		return stageSpec{}, fmt.Errorf("unknown stage %q", stage)
	}
	return spec, nil
}

// StageLabel returns a human-readable stage name
func StageLabel(stage types.Stage) string {
	if spec, ok := stageSpecs[stage]; ok {
		return spec.label
	}
	return string(stage)
}
