// Package types defines the allocation data model: drivers, rules,
// mappings, results and run state.
package types

import (
	"fmt"
	"strings"
)

// Stage is one of the eight fixed allocation steps
type Stage string

const (
	// StageRTR allocates common cost pools to departments (Resource→Resource)
	StageRTR Stage = "rtr"

	// StageRTA allocates department costs to activities (Resource→Activity)
	StageRTA Stage = "rta"

	// StageATA1 allocates internal support activities within a department
	StageATA1 Stage = "ata1"

	// StageATA2 allocates shared service activities across departments
	StageATA2 Stage = "ata2"

	// StageATC allocates activities to cost objects
	StageATC Stage = "atc"

	// StageRTC assigns resources directly to cost objects
	StageRTC Stage = "rtc"

	// StageETC attributes direct costs to cost objects
	StageETC Stage = "etc"

	// StageXTC attributes direct revenue to cost objects
	StageXTC Stage = "xtc"
)

// StageOrder is the fixed total order of stages. Enabled subsets always
// execute in this order.
var StageOrder = []Stage{
	StageRTR, StageRTA, StageATA1, StageATA2, StageATC, StageRTC, StageETC, StageXTC,
}

// String returns the string representation
func (s Stage) String() string {
	return string(s)
}

// Index returns the position of s in StageOrder, or -1.
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// ParseStage converts a stage name into a Stage
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// ParseStageList parses a comma separated list of stage names. Blank
// entries are skipped and names are case-insensitive.
func ParseStageList(list string) ([]Stage, error) {
	var stages []Stage
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		s, err := ParseStage(name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
