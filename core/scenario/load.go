// Package scenario loads allocation scenario files. A scenario file declares
// drivers with their values, allocation rules, driver mappings and the
// per-stage cost pools of a run. Files are HCL (.hcl) or HCL's JSON
// syntax (.json).
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"hospital-abc/internal/errors"
)

// file is the decoded document
type file struct {
	Scenario *scenarioBlock `hcl:"scenario,block"`
	Drivers  []driverBlock  `hcl:"driver,block"`
	Rules    []ruleBlock    `hcl:"rule,block"`
	Mappings []mappingBlock `hcl:"mapping,block"`
	Stages   []stageBlock   `hcl:"stage,block"`
}

type scenarioBlock struct {
	ID          string         `hcl:"id,label"`
	Name        string         `hcl:"name"`
	Version     string         `hcl:"version,optional"`
	Description string         `hcl:"description,optional"`
	Stages      []string       `hcl:"stages,optional"`
	ChainStages bool           `hcl:"chain_stages,optional"`
	Rounding    *roundingBlock `hcl:"rounding,block"`
}

type roundingBlock struct {
	Method    string `hcl:"method"`
	Precision int32  `hcl:"precision,optional"`
}

type driverBlock struct {
	ID         string            `hcl:"id,label"`
	Name       string            `hcl:"name"`
	Code       string            `hcl:"code,optional"`
	Category   string            `hcl:"category"`
	Basis      string            `hcl:"basis"`
	Unit       string            `hcl:"unit,optional"`
	Active     *bool             `hcl:"active,optional"`
	SourceType string            `hcl:"source_type"`
	Values     map[string]string `hcl:"values,optional"`
	Periods    []periodBlock     `hcl:"period,block"`
}

type periodBlock struct {
	Month  string            `hcl:"month,label"`
	Values map[string]string `hcl:"values"`
}

type ruleBlock struct {
	ID         string       `hcl:"id,label"`
	Name       string       `hcl:"name,optional"`
	Stage      string       `hcl:"stage"`
	Method     string       `hcl:"method"`
	Active     *bool        `hcl:"active,optional"`
	Priority   int          `hcl:"priority,optional"`
	SourceType string       `hcl:"source_type"`
	SourceIDs  []string     `hcl:"source_ids"`
	TargetType string       `hcl:"target_type"`
	TargetIDs  []string     `hcl:"target_ids"`
	DriverID   string       `hcl:"driver_id,optional"`
	Ratios     []ratioBlock `hcl:"ratio,block"`
}

type ratioBlock struct {
	SourceID string `hcl:"source_id"`
	TargetID string `hcl:"target_id"`
	Ratio    string `hcl:"ratio"`
}

type mappingBlock struct {
	ID              string   `hcl:"id,label"`
	DriverID        string   `hcl:"driver_id"`
	RuleID          string   `hcl:"rule_id"`
	Type            string   `hcl:"type,optional"`
	Active          *bool    `hcl:"active,optional"`
	AutoSync        bool     `hcl:"auto_sync,optional"`
	OverrideRatios  bool     `hcl:"override_ratios,optional"`
	ValidationRules []string `hcl:"validation_rules,optional"`
	PeriodMonth     int      `hcl:"period_month,optional"`
}

type stageBlock struct {
	Stage             string      `hcl:"stage,label"`
	DriverID          string      `hcl:"driver_id,optional"`
	PeriodMonth       int         `hcl:"period_month,optional"`
	ChainFromPrevious bool        `hcl:"chain_from_previous,optional"`
	Pools             []poolBlock `hcl:"pool,block"`
}

type poolBlock struct {
	ID        string   `hcl:"id,label"`
	Name      string   `hcl:"name,optional"`
	Type      string   `hcl:"type,optional"`
	Amount    string   `hcl:"amount"`
	TargetIDs []string `hcl:"target_ids,optional"`
	TargetID  string   `hcl:"target_id,optional"`
}

// Diagnostic is one problem found while reading a scenario file
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.File, d.Message)
}

// LoadFile reads and decodes a scenario file
func LoadFile(path string) (*Bundle, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to read scenario file", err)
	}
	return Parse(path, src)
}

// Parse decodes scenario source. The filename extension selects the syntax.
func Parse(filename string, src []byte) (*Bundle, error) {
	parser := hclparse.NewParser()

	var (
		f     *hcl.File
		diags hcl.Diagnostics
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		f, diags = parser.ParseHCL(src, filename)
	case ".json":
		f, diags = parser.ParseJSON(src, filename)
	default:
		return nil, errors.Newf(errors.TypeValidation, "unsupported scenario file %s: want .hcl or .json", filename)
	}
	if diags.HasErrors() {
		return nil, diagnosticsError(filename, diags)
	}

	var doc file
	if diags := gohcl.DecodeBody(f.Body, nil, &doc); diags.HasErrors() {
		return nil, diagnosticsError(filename, diags)
	}
	return build(filename, &doc)
}

func diagnosticsError(filename string, diags hcl.Diagnostics) error {
	var msgs []string
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		d := Diagnostic{File: filename, Message: diag.Summary}
		if diag.Detail != "" {
			d.Message += ": " + diag.Detail
		}
		if diag.Subject != nil {
			d.Line = diag.Subject.Start.Line
		}
		msgs = append(msgs, d.String())
	}
	return errors.Validation("invalid scenario file", fmt.Errorf("%s", strings.Join(msgs, "; ")))
}
