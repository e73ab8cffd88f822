// Package cmd - rules and drivers listing
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hospital-abc/core/catalog"
	"hospital-abc/core/types"
)

var (
	ruleStage      string
	activeOnly     bool
	showRatios     bool
	driverCategory string
	periodMonth    int
)

// rulesCmd lists allocation rules of a scenario
var rulesCmd = &cobra.Command{
	Use:   "rules [scenario-file]",
	Short: "List allocation rules",
	Long: `List the allocation rules of a scenario in execution order.

Examples:
  hospital-abc rules scenario.hcl
  hospital-abc rules --stage rta --ratios scenario.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}

		filter := catalog.RuleFilter{ActiveOnly: activeOnly}
		if ruleStage != "" {
			if filter.Stage, err = types.ParseStage(strings.ToLower(ruleStage)); err != nil {
				return err
			}
		}

		rules, err := ws.Catalog.ListRules(ctx, filter)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Fprintln(out, "No rules found")
			return nil
		}

		fmt.Fprintf(out, "%-24s %-6s %-14s %-10s %-12s %s\n", "ID", "STAGE", "METHOD", "ACTIVE", "DRIVER", "SOURCES → TARGETS")
		for _, r := range rules {
			driver := r.DriverID
			if driver == "" {
				driver = "-"
			}
			fmt.Fprintf(out, "%-24s %-6s %-14s %-10t %-12s %d → %d\n",
				truncate(r.ID, 24), r.Stage, r.Method, r.Active, truncate(driver, 12),
				len(r.SourceIDs), len(r.TargetIDs))
			if showRatios {
				for _, ar := range r.AllocationRatios {
					fmt.Fprintf(out, "  └─ %-20s → %-20s %s\n",
						truncate(ar.SourceID, 20), truncate(ar.TargetID, 20), ar.Ratio.StringFixed(4))
				}
			}
		}
		return nil
	},
}

// driversCmd lists cost drivers of a scenario
var driversCmd = &cobra.Command{
	Use:   "drivers [scenario-file]",
	Short: "List cost drivers and their values",
	Long: `List the cost drivers of a scenario, optionally filtered by category,
with their recorded values for every period or one month.

Examples:
  hospital-abc drivers scenario.hcl
  hospital-abc drivers --category area --period 3 scenario.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		ws, err := loadWorkspace(ctx, args[0])
		if err != nil {
			return err
		}

		drivers, err := ws.Catalog.ListDrivers(ctx, types.DriverCategory(driverCategory))
		if err != nil {
			return err
		}
		if len(drivers) == 0 {
			fmt.Fprintln(out, "No drivers found")
			return nil
		}

		var period *int
		if periodMonth > 0 {
			if periodMonth > 12 {
				return fmt.Errorf("period must be between 1 and 12, got %d", periodMonth)
			}
			period = catalog.Period(periodMonth)
		}

		for _, d := range drivers {
			status := "active"
			if !d.Active {
				status = "inactive"
			}
			fmt.Fprintf(out, "%s (%s) [%s, %s, %s]\n", d.ID, d.Name, d.Category, d.Basis, status)

			values, err := ws.Catalog.ListDriverValues(ctx, d.ID, period)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintf(out, "  └─ %-30s %-8s %16s %s\n", truncate(v.SourceID, 30), periodLabel(v.PeriodMonth), v.Value.String(), d.Unit)
			}
		}
		return nil
	},
}

func periodLabel(month int) string {
	if month == 0 {
		return "annual"
	}
	return fmt.Sprintf("month %d", month)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	rulesCmd.Flags().StringVar(&ruleStage, "stage", "", "only list rules of one stage")
	rulesCmd.Flags().BoolVar(&activeOnly, "active", false, "hide inactive rules")
	rulesCmd.Flags().BoolVar(&showRatios, "ratios", false, "print allocation ratios")

	driversCmd.Flags().StringVar(&driverCategory, "category", "", "filter by category (area, time, patient, volume, revenue, headcount, other)")
	driversCmd.Flags().IntVar(&periodMonth, "period", 0, "month to list values for (default: all periods)")
}
