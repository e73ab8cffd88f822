// Package cmd - validate command
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hospital-abc/core/determinism"
)

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate [scenario-file]",
	Short: "Check a scenario for configuration problems",
	Long: `Validate stage dependencies, rule ratios and driver mappings of a
scenario without executing it. Exits non-zero when errors are found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}
		report, err := ws.Check(ctx)
		if err != nil {
			return err
		}

		for _, f := range report.Findings {
			fmt.Fprintf(out, "%-8s %s: %s\n", strings.ToUpper(string(f.Severity)), f.Subject, f.Message)
		}
		for _, id := range determinism.SortedKeys(report.Coverage) {
			fmt.Fprintf(out, "COVERAGE mapping %s: %d%%\n", id, report.Coverage[id])
		}

		fmt.Fprintf(out, "\n%d error(s), %d warning(s)\n", report.Errors(), report.Warnings())
		if report.Errors() > 0 {
			return fmt.Errorf("scenario %s is invalid", args[0])
		}
		return nil
	},
}
