package output

import (
	"io"

	"hospital-abc/core/engine"
)

// MarkdownFormatter renders a report suitable for a PR comment or wiki page
type MarkdownFormatter struct{}

// Format returns the format type
func (f *MarkdownFormatter) Format() Format { return FormatMarkdown }

// Render writes the report
func (f *MarkdownFormatter) Render(w io.Writer, r *Report) error {
	p := &printer{w: w}
	state := r.State

	p.printf("## Allocation run `%s`\n\n", state.RunID)
	p.printf("| | |\n|---|---|\n")
	p.printf("| Outcome | **%s** |\n", r.Metadata.Outcome)
	if r.Metadata.Scenario != "" {
		p.printf("| Scenario | %s |\n", r.Metadata.Scenario)
	}
	p.printf("| Stages completed | %d of %d |\n", len(state.StagesCompleted), len(state.StagesRequested))
	p.printf("| Total allocated | %s |\n", money(state.TotalAllocated))
	p.printf("| Fingerprint | `%s` |\n\n", r.Metadata.Fingerprint)

	if len(r.Stages) > 0 {
		p.printf("### Stages\n\n| Stage | Description | Results | Amount |\n|---|---|---:|---:|\n")
		for _, st := range r.Stages {
			p.printf("| %s | %s | %d | %s |\n", st.Stage, engine.StageLabel(st.Stage), st.Results, money(st.Amount))
		}
		p.printf("\n")
	}

	if len(r.CostObjects) > 0 {
		p.printf("### Cost objects\n\n| Cost object | Cost | Revenue | Margin |\n|---|---:|---:|---:|\n")
		for _, co := range r.CostObjects {
			p.printf("| %s | %s | %s | %s |\n", co.TargetID, money(co.TotalCost), money(co.TotalRevenue), money(co.Margin()))
		}
		p.printf("| **Total** | **%s** | **%s** | **%s** |\n\n",
			money(r.Totals.Cost), money(r.Totals.Revenue), money(r.Totals.Margin()))
	}

	if r.ShowResults && len(state.Results) > 0 {
		p.printf("<details><summary>%d allocation results</summary>\n\n", len(state.Results))
		p.printf("| Stage | Source | Target | Ratio | Amount |\n|---|---|---|---:|---:|\n")
		for _, res := range state.Results {
			p.printf("| %s | %s | %s | %s | %s |\n",
				res.Stage, res.SourceID, res.TargetID, res.DriverRatio.StringFixed(4), money(res.Amount))
		}
		p.printf("\n</details>\n\n")
	}

	if len(state.Errors) > 0 {
		p.printf("### Errors\n\n")
		for _, e := range state.Errors {
			p.printf("- %s\n", e)
		}
		p.printf("\n")
	}
	if len(state.Warnings) > 0 {
		p.printf("### Warnings\n\n")
		for _, warn := range state.Warnings {
			p.printf("- %s\n", warn)
		}
		p.printf("\n")
	}
	return p.err
}
