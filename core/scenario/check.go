package scenario

import (
	"context"

	"hospital-abc/core/engine"
	"hospital-abc/core/types"
)

// Finding is one problem found in a workspace
type Finding struct {
	Severity types.Severity `json:"severity"`
	Subject  string         `json:"subject"`
	Message  string         `json:"message"`
}

// CheckReport is the result of checking a workspace without running it
type CheckReport struct {
	Findings []Finding `json:"findings"`

	// Coverage is the coverage score of every mapping by id
	Coverage map[string]int `json:"coverage"`
}

// Errors counts findings with error severity
func (r *CheckReport) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == types.SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts findings with warning severity
func (r *CheckReport) Warnings() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == types.SeverityWarning {
			n++
		}
	}
	return n
}

// Check validates stage dependencies, rule ratios and every mapping.
// Dependency violations are errors; catalog findings are warnings.
func (w *Workspace) Check(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{Findings: []Finding{}, Coverage: map[string]int{}}

	for _, msg := range engine.ValidateDependencies(w.Bundle.Stages) {
		report.Findings = append(report.Findings, Finding{Severity: types.SeverityError, Subject: "stages", Message: msg})
	}

	issues, err := w.Catalog.Validate(ctx)
	if err != nil {
		return nil, err
	}
	for _, msg := range issues {
		report.Findings = append(report.Findings, Finding{Severity: types.SeverityWarning, Subject: "catalog", Message: msg})
	}

	mappings, err := w.Mappings.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		v := w.Mappings.ValidateMapping(ctx, m)
		subject := "mapping " + m.ID
		for _, issue := range v.Errors {
			report.Findings = append(report.Findings, Finding{
				Severity: issue.Severity,
				Subject:  subject,
				Message:  issue.Field + ": " + issue.Message,
			})
		}
		for _, rec := range v.Recommendations {
			report.Findings = append(report.Findings, Finding{Severity: types.SeverityInfo, Subject: subject, Message: rec})
		}
		report.Coverage[m.ID] = v.CoverageScore
	}
	return report, nil
}
