package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"hospital-abc/core/types"
)

// RatioTolerance is the allowed drift of a ratio set from 1.0
var RatioTolerance = decimal.RequireFromString("0.001")

// ValidateAllocationRatio reports whether ratios sum to 1.0 within
// RatioTolerance. It is advisory; runs never enforce it.
func ValidateAllocationRatio(ratios []types.AllocationRatio) bool {
	return RatioSumWithin(ratios, RatioTolerance)
}

// RatioSumWithin reports whether |Σratio − 1| ≤ tolerance
func RatioSumWithin(ratios []types.AllocationRatio, tolerance decimal.Decimal) bool {
	sum := decimal.Zero
	for _, r := range ratios {
		sum = sum.Add(r.Ratio)
	}
	return sum.Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(tolerance)
}

// RatioIssues checks every source of a rule and describes the sources whose
// ratios do not sum to one
func RatioIssues(rule *types.AllocationRule, tolerance decimal.Decimal) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, ar := range rule.AllocationRatios {
		if !seen[ar.SourceID] {
			seen[ar.SourceID] = true
			sources = append(sources, ar.SourceID)
		}
	}

	var issues []string
	for _, src := range sources {
		ratios := rule.RatiosFor(src)
		if RatioSumWithin(ratios, tolerance) {
			continue
		}
		sum := decimal.Zero
		for _, r := range ratios {
			sum = sum.Add(r.Ratio)
		}
		issues = append(issues, fmt.Sprintf("rule %s: ratios for %s sum to %s, expected 1", rule.ID, src, sum.StringFixed(4)))
	}
	return issues
}

// Validate runs the advisory checks over every rule in the catalog
func (c *Catalog) Validate(ctx context.Context) ([]string, error) {
	rules, err := c.ListRules(ctx, RuleFilter{})
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, r := range rules {
		issues = append(issues, RatioIssues(r, RatioTolerance)...)
		if r.DriverID == "" && len(r.AllocationRatios) == 0 && r.Method != types.MethodDirect {
			issues = append(issues, fmt.Sprintf("rule %s: neither a driver nor allocation ratios are configured", r.ID))
		}
	}
	return issues, nil
}
