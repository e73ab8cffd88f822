package types

import (
	"time"
)

// MappingType is how a mapping derives the rule's ratios
type MappingType string

const (
	MappingDirect     MappingType = "direct"
	MappingCalculated MappingType = "calculated"
	MappingManual     MappingType = "manual"
)

// SyncStatus tracks whether a rule's ratios match its driver's values
type SyncStatus string

const (
	SyncSynced    SyncStatus = "synced"
	SyncOutOfSync SyncStatus = "out_of_sync"
	SyncError     SyncStatus = "error"
)

// Validation rule names understood by the mapping registry
const (
	CheckRatioSum     = "ratio_sum"
	CheckNonZeroTotal = "non_zero_total"
	CheckActiveDriver = "active_driver"
)

// MappingConfig holds per-mapping behavior
type MappingConfig struct {
	// AutoSync resynchronizes when the driver changes
	AutoSync bool `json:"auto_sync"`

	// OverrideRatios keeps hand-entered ratios; sync leaves them alone
	OverrideRatios bool `json:"override_ratios"`

	// ValidationRules names the checks run by ValidateMapping
	ValidationRules []string `json:"validation_rules,omitempty"`

	// PeriodMonth selects which driver values feed the ratios
	PeriodMonth int `json:"period_month"`
}

// DriverMapping binds one driver to one allocation rule
type DriverMapping struct {
	// ID uniquely identifies the mapping
	ID string `json:"id"`

	// DriverID is the bound driver
	DriverID string `json:"driver_id"`

	// AllocationRuleID is the bound rule
	AllocationRuleID string `json:"allocation_rule_id"`

	// MappingType is how ratios are derived
	MappingType MappingType `json:"mapping_type"`

	// SyncStatus is the current synchronization state
	SyncStatus SyncStatus `json:"sync_status"`

	// Config holds mapping behavior
	Config MappingConfig `json:"mapping_config"`

	// Active marks the mapping as in use
	Active bool `json:"active"`

	// LastSyncDate is when ratios were last recomputed
	LastSyncDate *time.Time `json:"last_sync_date,omitempty"`

	// SyncErrors records failures of the last sync
	SyncErrors []string `json:"sync_errors,omitempty"`
}

// Clone returns a deep copy of the mapping
func (m *DriverMapping) Clone() *DriverMapping {
	c := *m
	c.Config.ValidationRules = append([]string(nil), m.Config.ValidationRules...)
	c.SyncErrors = append([]string(nil), m.SyncErrors...)
	if m.LastSyncDate != nil {
		t := *m.LastSyncDate
		c.LastSyncDate = &t
	}
	return &c
}

// Severity grades a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is one finding of a mapping validation
type ValidationIssue struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// MappingValidation is the health report of a mapping
type MappingValidation struct {
	// IsValid is false when any issue has error severity
	IsValid bool `json:"is_valid"`

	// Errors lists all findings, including warnings
	Errors []ValidationIssue `json:"errors"`

	// Recommendations are advisory follow-ups
	Recommendations []string `json:"recommendations"`

	// CoverageScore is a 0-100 heuristic of target coverage
	CoverageScore int `json:"coverage_score"`
}

// SyncResult reports a mapping synchronization
type SyncResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	UpdatedRatios []AllocationRatio `json:"updated_ratios,omitempty"`
}
