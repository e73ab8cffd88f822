// Package output renders allocation runs for people and machines.
package output

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"hospital-abc/core/aggregate"
	"hospital-abc/core/types"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable CLI table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"

	// FormatMarkdown is a markdown report
	FormatMarkdown Format = "markdown"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render produces output for the given report
	Render(w io.Writer, report *Report) error
}

// Report is everything rendered for one run
type Report struct {
	// State is the run record
	State *types.ExecutionState `json:"state"`

	// CostObjects are the per cost object totals ordered by id
	CostObjects []*aggregate.CostObjectSummary `json:"cost_objects"`

	// Stages are the totals moved per stage
	Stages []aggregate.StageTotal `json:"stages"`

	// Totals is the grand total over cost objects
	Totals aggregate.Totals `json:"totals"`

	// Metadata contains execution context
	Metadata ReportMetadata `json:"metadata"`

	// ShowResults includes every allocation result in human formats
	ShowResults bool `json:"-"`
}

// ReportMetadata contains execution context
type ReportMetadata struct {
	// Outcome classifies the run
	Outcome types.RunOutcome `json:"outcome"`

	// Duration is how long the run took
	Duration string `json:"duration"`

	// Fingerprint is the content hash of the results
	Fingerprint string `json:"fingerprint"`

	// Scenario is the scenario file or id the run was planned from
	Scenario string `json:"scenario,omitempty"`

	// Version is the tool version
	Version string `json:"version"`
}

// NewReport derives a report from a finished run
func NewReport(state *types.ExecutionState, meta ReportMetadata) *Report {
	summary := aggregate.FromState(state)
	meta.Outcome = state.Outcome()
	if meta.Duration == "" {
		meta.Duration = state.Duration().String()
	}
	return &Report{
		State:       state,
		CostObjects: aggregate.SortedTargets(summary),
		Stages:      aggregate.ByStage(state.Results),
		Totals:      aggregate.Total(summary),
		Metadata:    meta,
	}
}

var (
	registryMu sync.RWMutex
	formatters = map[Format]Formatter{}
)

// Register adds a formatter, replacing any existing one for its format
func Register(f Formatter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	formatters[f.Format()] = f
}

// Get returns the formatter for a format
func Get(format Format) (Formatter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if format == "table" {
		format = FormatCLI
	}
	f, ok := formatters[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return f, nil
}

// Formats lists registered formats
func Formats() []Format {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Format, 0, len(formatters))
	for f := range formatters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func init() {
	Register(&CLIFormatter{})
	Register(&JSONFormatter{Indent: "  "})
	Register(&MarkdownFormatter{})
}
