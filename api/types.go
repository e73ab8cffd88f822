// Package api - API types for allocation runs
// These types define the contract of the /runs and /validate endpoints.
package api

import (
	"time"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/guards"
	"hospital-abc/core/output"
	"hospital-abc/core/scenario"
)

// RunRequest is the input to POST /runs and POST /validate
type RunRequest struct {
	// Scenario is the scenario document
	Scenario ScenarioSource `json:"scenario"`

	// Stages overrides the scenario's stage list (optional)
	Stages []string `json:"stages,omitempty"`

	// Chain feeds each stage from the balances of earlier stages
	Chain bool `json:"chain,omitempty"`

	// Save persists the run; defaults to true
	Save *bool `json:"save,omitempty"`
}

// ScenarioSource is an inline scenario document
type ScenarioSource struct {
	// Filename selects the syntax by extension (.hcl or .json)
	Filename string `json:"filename"`

	// Content is the document text
	Content string `json:"content"`
}

// RunResponse is the output of POST /runs
type RunResponse struct {
	RequestID string `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Saved is true when the run was persisted
	Saved bool `json:"saved"`

	// Report is the rendered run
	Report *output.Report `json:"report"`

	// Violations lists broken run invariants; empty for a healthy run
	Violations []guards.Violation `json:"violations,omitempty"`

	// Metadata
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// ValidateResponse is the output of POST /validate
type ValidateResponse struct {
	RequestID string                `json:"request_id"`
	Valid     bool                  `json:"valid"`
	Report    *scenario.CheckReport `json:"report"`
}

// RunListResponse is the output of GET /runs
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// RunSummary is a stored run without its results
type RunSummary struct {
	ID             string    `json:"id"`
	ScenarioID     string    `json:"scenario_id,omitempty"`
	Outcome        string    `json:"outcome"`
	TotalAllocated string    `json:"total_allocated"`
	TotalCost      string    `json:"total_cost"`
	TotalRevenue   string    `json:"total_revenue"`
	ResultCount    int       `json:"result_count"`
	Fingerprint    string    `json:"fingerprint"`
	CreatedAt      time.Time `json:"created_at"`
}

func summarize(run *storage.StoredRun) RunSummary {
	return RunSummary{
		ID:             run.ID,
		ScenarioID:     run.ScenarioID,
		Outcome:        string(run.Outcome),
		TotalAllocated: run.TotalAllocated.String(),
		TotalCost:      run.TotalCost.String(),
		TotalRevenue:   run.TotalRevenue.String(),
		ResultCount:    run.ResultCount,
		Fingerprint:    run.Fingerprint,
		CreatedAt:      run.CreatedAt,
	}
}

// ResponseMetadata contains execution metadata
type ResponseMetadata struct {
	InputHash     string `json:"input_hash"`
	EngineVersion string `json:"engine_version"`
	DurationMs    int64  `json:"duration_ms"`
}

// ErrorDetail provides error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
