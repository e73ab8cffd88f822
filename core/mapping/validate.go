package mapping

import (
	"context"
	"fmt"

	"hospital-abc/core/catalog"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

// Coverage scores reported by ValidateMapping
const (
	coverageSynced    = 95
	coverageOutOfSync = 60
	coverageDefault   = 80
)

// ValidateMapping reports the health of a mapping. Missing references are
// errors; drift and data-quality findings are warnings.
func (r *Registry) ValidateMapping(ctx context.Context, m *types.DriverMapping) types.MappingValidation {
	v := types.MappingValidation{
		Errors:          []types.ValidationIssue{},
		Recommendations: []string{},
	}
	add := func(field, msg string, sev types.Severity) {
		v.Errors = append(v.Errors, types.ValidationIssue{Field: field, Message: msg, Severity: sev})
	}

	var (
		driver    types.Driver
		hasDriver bool
		rule      *types.AllocationRule
	)

	if m.DriverID == "" {
		add("driver_id", "driver is required", types.SeverityError)
	} else if d, err := r.store.GetDriver(ctx, m.DriverID); err != nil {
		add("driver_id", errors.Detail(err), types.SeverityError)
	} else {
		driver, hasDriver = d, true
	}

	if m.AllocationRuleID == "" {
		add("allocation_rule_id", "allocation rule is required", types.SeverityError)
	} else if rl, err := r.store.GetRule(ctx, m.AllocationRuleID); err != nil {
		add("allocation_rule_id", errors.Detail(err), types.SeverityError)
	} else {
		rule = rl
	}

	switch m.SyncStatus {
	case types.SyncOutOfSync:
		add("sync_status", "allocation ratios are out of sync with driver values", types.SeverityWarning)
		v.Recommendations = append(v.Recommendations, "run a sync to recompute allocation ratios from current driver values")
	case types.SyncError:
		add("sync_status", "last synchronization failed", types.SeverityWarning)
		v.Recommendations = append(v.Recommendations, "review sync errors and driver values, then sync again")
	}

	for _, check := range m.Config.ValidationRules {
		switch check {
		case types.CheckRatioSum:
			if rule == nil {
				continue
			}
			for _, issue := range catalog.RatioIssues(rule, catalog.RatioTolerance) {
				add("allocation_ratios", issue, types.SeverityWarning)
			}
		case types.CheckNonZeroTotal:
			if rule == nil || !hasDriver {
				continue
			}
			values, err := r.store.ListDriverValues(ctx, driver.ID, catalog.Period(m.Config.PeriodMonth))
			if err != nil {
				add("driver_id", errors.Detail(err), types.SeverityError)
				continue
			}
			if _, err := ComputeRatios(rule, values); err != nil {
				add("driver_values", errors.Detail(err), types.SeverityError)
			}
		case types.CheckActiveDriver:
			if hasDriver && !driver.Active {
				add("driver_id", fmt.Sprintf("driver %s is inactive", driver.ID), types.SeverityWarning)
				v.Recommendations = append(v.Recommendations, "activate the driver or bind the rule to an active one")
			}
		default:
			add("validation_rules", fmt.Sprintf("unknown validation rule %q", check), types.SeverityInfo)
		}
	}

	v.IsValid = true
	for _, issue := range v.Errors {
		if issue.Severity == types.SeverityError {
			v.IsValid = false
			break
		}
	}

	switch {
	case m.SyncStatus == types.SyncSynced && m.Active:
		v.CoverageScore = coverageSynced
	case m.SyncStatus == types.SyncOutOfSync:
		v.CoverageScore = coverageOutOfSync
	default:
		v.CoverageScore = coverageDefault
	}
	return v
}
