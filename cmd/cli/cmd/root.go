// Package cmd provides the CLI commands for hospital-abc.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/determinism"
	"hospital-abc/core/scenario"
	"hospital-abc/internal/config"
	"hospital-abc/internal/logging"
)

// Version is the tool version
const Version = "0.3.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hospital-abc",
	Short: "Activity-Based Costing allocation for hospitals",
	Long: `hospital-abc runs staged Activity-Based Costing allocations.

Overhead accounts are spread to departments, departments to activities,
activities to each other and finally to cost objects (patient classes,
service lines), with direct costs and revenue attributed on the side.

Examples:
  hospital-abc run scenario.hcl
  hospital-abc run --format json --stages rtr,rta scenario.hcl
  hospital-abc validate scenario.hcl
  hospital-abc runs list`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hospital-abc.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(driversCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hospital-abc.json"
	}
	return filepath.Join(home, ".hospital-abc.json")
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM so a run stops before its next stage
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadWorkspace reads a scenario file into a fresh catalog and mapping registry
func loadWorkspace(ctx context.Context, path string) (*scenario.Workspace, error) {
	bundle, err := scenario.LoadFile(path)
	if err != nil {
		return nil, err
	}

	ws, err := scenario.Open(ctx, bundle, logging.Logger)
	if err != nil {
		return nil, err
	}
	for _, id := range determinism.SortedKeys(ws.Synced) {
		if res := ws.Synced[id]; !res.Success {
			logging.Logger.Warn("auto sync did not update mapping", zap.String("mapping", id), zap.String("reason", res.Message))
		}
	}
	return ws, nil
}

func openStore() (storage.Store, error) {
	cfg := config.Get()
	return storage.StoreFactory(storage.Backend(cfg.Storage.Backend), cfg.Storage.Path)
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hospital-abc version %s\n", Version)
	},
}

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = defaultConfigPath()
		}
		if err := config.Get().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
