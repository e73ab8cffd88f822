// Package cmd - stored run commands
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/engine"
	"hospital-abc/core/explanation"
	"hospital-abc/core/output"
	"hospital-abc/core/types"
)

var (
	runsScenario string
	runsOutcome  string
	runsSince    string
	runsLimit    int
	runsFormat   string
	runsDetails  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage saved allocation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		filter := &storage.ListFilter{
			ScenarioID: runsScenario,
			Outcome:    types.RunOutcome(runsOutcome),
			Limit:      runsLimit,
		}
		if runsSince != "" {
			since, err := time.Parse("2006-01-02", runsSince)
			if err != nil {
				return fmt.Errorf("invalid --since date %q: %w", runsSince, err)
			}
			filter.Since = since
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs found")
			return nil
		}

		fmt.Fprintf(out, "%-38s %-16s %-10s %-20s %18s %8s\n", "ID", "SCENARIO", "OUTCOME", "CREATED", "COST", "RESULTS")
		for _, r := range runs {
			fmt.Fprintf(out, "%-38s %-16s %-10s %-20s %18s %8d\n",
				truncate(r.ID, 38), truncate(r.ScenarioID, 16), r.Outcome,
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.TotalCost.StringFixed(2), r.ResultCount)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Render a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		format := runsFormat
		if format == "" {
			format = "cli"
		}
		formatter, err := output.Get(output.Format(format))
		if err != nil {
			return err
		}
		report := output.NewReport(run.State, output.ReportMetadata{
			Fingerprint: run.Fingerprint,
			Scenario:    run.ScenarioID,
			Version:     run.Metadata["version"],
		})
		report.ShowResults = runsDetails
		return formatter.Render(cmd.OutOrStdout(), report)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id...]",
	Short: "Delete saved runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	},
}

var runsCompareCmd = &cobra.Command{
	Use:   "compare [old-run-id] [new-run-id]",
	Short: "Compare cost object totals of two runs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := storage.Compare(cmd.Context(), store, args[0], args[1])
		if err != nil {
			return err
		}

		if runsFormat == string(output.FormatJSON) {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Fprintf(out, "%-30s %-10s %18s %18s %18s\n", "COST OBJECT", "CHANGE", "OLD", "NEW", "DELTA")
		for _, d := range res.CostObjects {
			fmt.Fprintf(out, "%-30s %-10s %18s %18s %18s\n",
				truncate(d.TargetID, 30), d.ChangeType, d.Before.StringFixed(2), d.After.StringFixed(2), signed(d.Delta.StringFixed(2)))
		}
		fmt.Fprintf(out, "%-30s %-10s %18s %18s %18s\n", "TOTAL", "",
			res.CostBefore.StringFixed(2), res.CostAfter.StringFixed(2), signed(res.Delta.StringFixed(2)))

		fmt.Fprintf(out, "\n%-30s %-10s %18s %18s %18s\n", "STAGE", "", "OLD", "NEW", "DELTA")
		for _, st := range res.Stages {
			fmt.Fprintf(out, "%-30s %-10s %18s %18s %18s\n",
				engine.StageLabel(st.Stage), st.Stage, st.Before.StringFixed(2), st.After.StringFixed(2), signed(st.Delta.StringFixed(2)))
		}
		fmt.Fprintf(out, "\nChange: %+.2f%%\n", res.DeltaPercent)
		if !res.FingerprintChanged {
			fmt.Fprintln(out, "Results are identical")
		}
		return nil
	},
}

var runsExplainCmd = &cobra.Command{
	Use:   "explain [run-id] [entity-id]",
	Short: "Trace where an entity's cost came from",
	Long: `Print the allocations into an entity together with the earlier flows
that fed each source, weighted by the ratios along the way.

Example:
  hospital-abc runs explain 0b9c... pc4`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		e := explanation.Explain(run.State, args[1])
		if runsFormat == string(output.FormatJSON) {
			data, err := e.ToJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), e.ToNarrative())
		return err
	},
}

func signed(s string) string {
	if len(s) > 0 && s[0] != '-' {
		return "+" + s
	}
	return s
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsCompareCmd)
	runsCmd.AddCommand(runsExplainCmd)

	runsListCmd.Flags().StringVar(&runsScenario, "scenario", "", "only runs of one scenario")
	runsListCmd.Flags().StringVar(&runsOutcome, "outcome", "", "only runs with outcome (completed, partial, rejected)")
	runsListCmd.Flags().StringVar(&runsSince, "since", "", "only runs created on or after date (YYYY-MM-DD)")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list (0 for all)")

	runsShowCmd.Flags().StringVarP(&runsFormat, "format", "f", "", "output format (table, json, markdown)")
	runsShowCmd.Flags().BoolVarP(&runsDetails, "details", "d", false, "list every allocation result")
	runsCompareCmd.Flags().StringVarP(&runsFormat, "format", "f", "", "output format (table, json)")
	runsExplainCmd.Flags().StringVarP(&runsFormat, "format", "f", "", "output format (table, json)")
}
