package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"hospital-abc/core/engine"
)

const boxWidth = 73

// CLIFormatter renders a boxed terminal summary
type CLIFormatter struct{}

// Format returns the format type
func (f *CLIFormatter) Format() Format { return FormatCLI }

// Render writes the summary
func (f *CLIFormatter) Render(w io.Writer, r *Report) error {
	p := &printer{w: w}
	state := r.State

	p.rule("┌", "┐")
	p.center("ALLOCATION RUN " + strings.ToUpper(string(r.Metadata.Outcome)))
	p.rule("├", "┤")
	p.row("Run", state.RunID)
	if r.Metadata.Scenario != "" {
		p.row("Scenario", r.Metadata.Scenario)
	}
	p.row("Stages", fmt.Sprintf("%d of %d completed", len(state.StagesCompleted), len(state.StagesRequested)))

	if len(r.Stages) > 0 {
		p.rule("├", "┤")
		for _, st := range r.Stages {
			p.row(fmt.Sprintf("%-4s %s", st.Stage, engine.StageLabel(st.Stage)),
				fmt.Sprintf("%s (%d)", money(st.Amount), st.Results))
			if r.ShowResults {
				for _, res := range state.ResultsFor(st.Stage) {
					p.row("  └─ "+res.SourceID+" → "+res.TargetID, money(res.Amount))
				}
			}
		}
	}

	if len(r.CostObjects) > 0 {
		p.rule("├", "┤")
		p.row("COST OBJECT", "COST / REVENUE")
		for _, co := range r.CostObjects {
			p.row(co.TargetID, money(co.TotalCost)+" / "+money(co.TotalRevenue))
		}
	}

	p.rule("├", "┤")
	p.row("TOTAL ALLOCATED", money(state.TotalAllocated))
	if r.Totals.CostObjects > 0 {
		p.row("COST OBJECT MARGIN", money(r.Totals.Margin()))
	}
	p.rule("└", "┘")

	for _, e := range state.Errors {
		p.printf("Error: %s\n", e)
	}
	for _, warn := range state.Warnings {
		p.printf("Warning: %s\n", warn)
	}
	p.printf("\nRun finished in %s\n", r.Metadata.Duration)
	p.printf("Fingerprint: %s\n", r.Metadata.Fingerprint)
	return p.err
}

// printer keeps the first write error so rendering code stays linear
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) rule(left, right string) {
	p.printf("%s%s%s\n", left, strings.Repeat("─", boxWidth), right)
}

func (p *printer) center(s string) {
	pad := boxWidth - len([]rune(s))
	if pad < 0 {
		pad = 0
	}
	p.printf("│%s%s%s│\n", strings.Repeat(" ", pad/2), s, strings.Repeat(" ", pad-pad/2))
}

func (p *printer) row(label, value string) {
	p.printf("│ %s %s │\n", padRight(truncate(label, 44), 44), padLeft(truncate(value, 26), 26))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func padRight(s string, n int) string {
	if l := len([]rune(s)); l < n {
		return s + strings.Repeat(" ", n-l)
	}
	return s
}

func padLeft(s string, n int) string {
	if l := len([]rune(s)); l < n {
		return strings.Repeat(" ", n-l) + s
	}
	return s
}

// money formats an amount with two decimals and thousands separators
func money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}
