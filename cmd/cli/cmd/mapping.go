// Package cmd - driver mapping commands
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hospital-abc/core/types"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Inspect and synchronize driver mappings",
	Long: `Driver mappings bind a cost driver to an allocation rule so the rule's
ratios can be recomputed from the driver's current values.`,
}

var mappingListCmd = &cobra.Command{
	Use:   "list [scenario-file]",
	Short: "List driver mappings and their sync status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}
		mappings, err := ws.Mappings.List(ctx)
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			fmt.Fprintln(out, "No mappings found")
			return nil
		}

		fmt.Fprintf(out, "%-24s %-14s %-24s %-11s %-12s %s\n", "ID", "DRIVER", "RULE", "TYPE", "STATUS", "LAST SYNC")
		for _, m := range mappings {
			last := "never"
			if m.LastSyncDate != nil {
				last = m.LastSyncDate.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%-24s %-14s %-24s %-11s %-12s %s\n",
				truncate(m.ID, 24), truncate(m.DriverID, 14), truncate(m.AllocationRuleID, 24),
				m.MappingType, m.SyncStatus, last)
			for _, e := range m.SyncErrors {
				fmt.Fprintf(out, "  └─ %s\n", e)
			}
		}
		return nil
	},
}

var mappingSyncCmd = &cobra.Command{
	Use:   "sync [scenario-file] [mapping-id...]",
	Short: "Recompute rule ratios from driver values",
	Long: `Synchronize driver mappings. Without mapping ids every active mapping
is synchronized. Prints the ratios each sync produced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}

		ids := args[1:]
		if len(ids) == 0 {
			mappings, err := ws.Mappings.List(ctx)
			if err != nil {
				return err
			}
			for _, m := range mappings {
				if m.Active {
					ids = append(ids, m.ID)
				}
			}
		}

		failed := 0
		for _, id := range ids {
			res, err := ws.Mappings.SyncDriverMapping(ctx, id)
			if err != nil {
				fmt.Fprintf(out, "✗ %s: %v\n", id, err)
				failed++
				continue
			}
			mark := "✓"
			if !res.Success {
				mark = "-"
			}
			fmt.Fprintf(out, "%s %s: %s\n", mark, id, res.Message)
			for _, ar := range res.UpdatedRatios {
				fmt.Fprintf(out, "  └─ %-20s → %-20s %s\n",
					truncate(ar.SourceID, 20), truncate(ar.TargetID, 20), ar.Ratio.StringFixed(4))
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d mappings failed to sync", failed, len(ids))
		}
		return nil
	},
}

var mappingValidateCmd = &cobra.Command{
	Use:   "validate [scenario-file] [mapping-id...]",
	Short: "Check mapping health and target coverage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}

		var mappings []*types.DriverMapping
		if len(args) > 1 {
			for _, id := range args[1:] {
				m, err := ws.Mappings.Get(id)
				if err != nil {
					return err
				}
				mappings = append(mappings, m)
			}
		} else if mappings, err = ws.Mappings.List(ctx); err != nil {
			return err
		}

		invalid := 0
		for _, m := range mappings {
			v := ws.Mappings.ValidateMapping(ctx, m)
			mark := "✓"
			if !v.IsValid {
				mark = "✗"
				invalid++
			}
			fmt.Fprintf(out, "%s %s (coverage %d%%)\n", mark, m.ID, v.CoverageScore)
			for _, issue := range v.Errors {
				fmt.Fprintf(out, "  └─ [%s] %s: %s\n", issue.Severity, issue.Field, issue.Message)
			}
			for _, rec := range v.Recommendations {
				fmt.Fprintf(out, "  └─ hint: %s\n", rec)
			}
		}

		if invalid > 0 {
			return fmt.Errorf("%d invalid mapping(s)", invalid)
		}
		return nil
	},
}

func init() {
	mappingCmd.AddCommand(mappingListCmd)
	mappingCmd.AddCommand(mappingSyncCmd)
	mappingCmd.AddCommand(mappingValidateCmd)
}
