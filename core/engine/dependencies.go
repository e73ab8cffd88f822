package engine

import (
	"fmt"

	"hospital-abc/core/types"
)

// prerequisites maps a stage to the stage that must also be enabled
var prerequisites = map[types.Stage]types.Stage{
	types.StageRTA:  types.StageRTR,
	types.StageATA1: types.StageRTA,
	types.StageATA2: types.StageATA1,
	types.StageATC:  types.StageATA2,
	types.StageRTC:  types.StageRTR,
}

// Prerequisite returns the stage that must be enabled alongside stage
func Prerequisite(stage types.Stage) (types.Stage, bool) {
	p, ok := prerequisites[stage]
	return p, ok
}

// OrderStages deduplicates the enabled stages and puts them in the fixed
// stage order. Unknown stage names are returned separately.
func OrderStages(enabled []types.Stage) (ordered []types.Stage, unknown []types.Stage) {
	set := make(map[types.Stage]bool, len(enabled))
	for _, s := range enabled {
		if !s.Valid() {
			unknown = append(unknown, s)
			continue
		}
		set[s] = true
	}
	for _, s := range types.StageOrder {
		if set[s] {
			ordered = append(ordered, s)
		}
	}
	return ordered, unknown
}

// ValidateDependencies returns one message per enabled stage whose
// prerequisite is not enabled, plus one per unknown stage.
func ValidateDependencies(enabled []types.Stage) []string {
	ordered, unknown := OrderStages(enabled)

	var errs []string
	for _, s := range unknown {
		errs = append(errs, fmt.Sprintf("unknown stage %q", s))
	}

	set := make(map[types.Stage]bool, len(ordered))
	for _, s := range ordered {
		set[s] = true
	}
	for _, s := range ordered {
		if req, ok := prerequisites[s]; ok && !set[req] {
			errs = append(errs, fmt.Sprintf("stage %s requires stage %s to be enabled", s, req))
		}
	}
	return errs
}
