// Package cmd - run command
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/determinism"
	"hospital-abc/core/engine"
	"hospital-abc/core/guards"
	"hospital-abc/core/output"
	"hospital-abc/core/scenario"
	"hospital-abc/core/types"
	"hospital-abc/core/ui"
	"hospital-abc/internal/config"
	"hospital-abc/internal/logging"
)

var (
	outputFormat string
	stageList    string
	chainStages  bool
	parallelism  int
	showResults  bool
	noSave       bool
	showProgress bool
	noColor      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [scenario-file]",
	Short: "Run an allocation scenario",
	Long: `Load a scenario file (.hcl or .json), run the enabled stages and print
the allocation summary. The run is saved to the configured store.

Examples:
  hospital-abc run scenario.hcl
  hospital-abc run --stages rtr,rta,rtc scenario.hcl
  hospital-abc run --chain --format markdown scenario.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: runAllocation,
}

func init() {
	runCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format (table, json, markdown)")
	runCmd.Flags().StringVarP(&stageList, "stages", "s", "", "comma separated stages to run (default: scenario stages)")
	runCmd.Flags().BoolVar(&chainStages, "chain", false, "feed each stage from the balances left by earlier stages")
	runCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "concurrent pools per stage (default: config)")
	runCmd.Flags().BoolVarP(&showResults, "details", "d", false, "list every allocation result")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the run")
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "draw stage progress bars on stderr")
	runCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored progress output")
}

func runAllocation(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	cfg := config.Get()

	ws, err := loadWorkspace(ctx, args[0])
	if err != nil {
		return err
	}

	stages := ws.Bundle.Stages
	if stageList != "" {
		stages, err = types.ParseStageList(stageList)
		if err != nil {
			return err
		}
	}

	opts := engine.OptionsFromConfig(cfg)
	if ws.Bundle.Scenario.Settings.Rounding.Method != "" {
		opts.Rounding = ws.Bundle.Scenario.Settings.Rounding
	}
	if chainStages || ws.Bundle.ChainStages {
		opts.ChainStages = true
	}
	if parallelism > 0 {
		opts.Parallelism = parallelism
	}

	eng := engine.New(ws.Catalog,
		engine.WithOptions(opts),
		engine.WithLogger(logging.Logger),
		engine.WithMappings(ws.Mappings),
		engine.WithScenario(ws.Bundle.Scenario.ID),
	)

	term := ui.NewWriter(cmd.ErrOrStderr(), noColor)
	bars := term.NewStageProgress()
	progress := func(stage types.Stage, pct int) {
		logging.Logger.Debug("progress", zap.String("stage", stage.String()), zap.Int("percent", pct))
		if showProgress {
			bars.Update(stage, pct)
		}
	}
	state := eng.ExecuteWorkflow(ctx, stages, ws.Bundle.StageConfigs, progress)
	bars.Done()

	violations := guards.Check(state, guards.DefaultTolerance)
	for _, v := range violations {
		logging.Logger.Error("invariant violated", zap.String("run_id", state.RunID), zap.String("violation", v.String()))
	}

	if !noSave {
		if err := saveRun(cmd, state, args[0]); err != nil {
			logging.Logger.Warn("run not saved", zap.Error(err))
			term.Warning("run %s not saved: %v", state.RunID, err)
		} else if showProgress {
			term.Success("run %s saved", state.RunID)
		}
	}

	format := outputFormat
	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	formatter, err := output.Get(output.Format(format))
	if err != nil {
		return err
	}
	report := output.NewReport(state, output.ReportMetadata{
		Fingerprint: determinism.Fingerprint(state.Results).Hex(),
		Scenario:    scenarioLabel(ws, args[0]),
		Version:     Version,
	})
	report.ShowResults = showResults || cfg.Output.ShowResults
	if err := formatter.Render(cmd.OutOrStdout(), report); err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}

	if len(violations) > 0 {
		return fmt.Errorf("run %s violated %d invariant(s)", state.RunID, len(violations))
	}
	if outcome := state.Outcome(); outcome != types.OutcomeCompleted {
		return fmt.Errorf("run %s %s: %s", state.RunID, outcome, strings.Join(state.Errors, "; "))
	}
	return nil
}

func saveRun(cmd *cobra.Command, state *types.ExecutionState, source string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	abs, _ := filepath.Abs(source)
	return store.Save(cmd.Context(), storage.NewStoredRun(state, map[string]string{
		"source":  abs,
		"version": Version,
	}))
}

func scenarioLabel(ws *scenario.Workspace, path string) string {
	if ws.Bundle.Scenario.Name != "" {
		return ws.Bundle.Scenario.Name
	}
	return filepath.Base(path)
}
