// Package config provides configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"hospital-abc/core/types"
	"hospital-abc/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Engine tunes allocation runs
	Engine EngineConfig `json:"engine"`

	// Rounding is applied to every allocated amount
	Rounding types.Rounding `json:"rounding"`

	// Storage selects where run results are persisted
	Storage StorageConfig `json:"storage"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// EngineConfig contains allocation engine settings
type EngineConfig struct {
	// Parallelism bounds concurrent pool computation within one stage.
	// Values below 2 run pools sequentially.
	Parallelism int `json:"parallelism" env:"ABC_ENGINE_PARALLELISM"`

	// ChainStages feeds each stage from the aggregated targets of the
	// stage before it instead of its own ledger
	ChainStages bool `json:"chain_stages" env:"ABC_ENGINE_CHAIN_STAGES"`

	// DeviationThreshold is the number of standard deviations a driver value
	// may sit from the mean before a warning is raised. Zero disables it.
	DeviationThreshold float64 `json:"deviation_threshold" env:"ABC_ENGINE_DEVIATION_THRESHOLD"`

	// RatioTolerance is the allowed drift of a ratio set from 1.0
	RatioTolerance float64 `json:"ratio_tolerance" env:"ABC_ENGINE_RATIO_TOLERANCE"`
}

// StorageConfig contains run persistence settings
type StorageConfig struct {
	// Backend is one of memory, file, sqlite
	Backend string `json:"backend" env:"ABC_STORAGE_BACKEND"`

	// Path is the directory (file) or database file (sqlite)
	Path string `json:"path" env:"ABC_STORAGE_PATH"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default output format
	DefaultFormat string `json:"default_format" env:"ABC_OUTPUT_FORMAT"`

	// ShowResults lists every allocation result, not only summaries
	ShowResults bool `json:"show_results"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: "1.0",
		Engine: EngineConfig{
			Parallelism:        1,
			DeviationThreshold: 2.0,
			RatioTolerance:     0.001,
		},
		Rounding: types.Rounding{Method: types.RoundingNone},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(homeDir, ".hospital-abc", "runs.db"),
		},
		Output: OutputConfig{
			DefaultFormat: "table",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from ABC_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
