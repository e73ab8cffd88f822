package engine

import (
	"github.com/shopspring/decimal"

	"hospital-abc/internal/config"
)

// OptionsFromConfig builds run options from the engine and rounding
// sections of cfg. Unset values keep their defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.Engine.Parallelism > 0 {
		opts.Parallelism = cfg.Engine.Parallelism
	}
	opts.ChainStages = cfg.Engine.ChainStages
	opts.DeviationThreshold = cfg.Engine.DeviationThreshold
	if cfg.Engine.RatioTolerance > 0 {
		opts.RatioTolerance = decimal.NewFromFloat(cfg.Engine.RatioTolerance)
	}
	if cfg.Rounding.Method != "" {
		opts.Rounding = cfg.Rounding
	}
	return opts
}
