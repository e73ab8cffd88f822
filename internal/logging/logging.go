// Package logging provides structured logging for allocation runs.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process logger. Components receive it explicitly and
	// fall back to it when none is supplied.
	Logger *zap.Logger
)

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level
	Level string `json:"level" env:"ABC_LOG_LEVEL"`

	// Format is the output format (json, console)
	Format string `json:"format" env:"ABC_LOG_FORMAT"`

	// Output is the output destination (stdout, stderr, file path)
	Output string `json:"output" env:"ABC_LOG_OUTPUT"`

	// Development enables development mode
	Development bool `json:"development"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// New builds a logger from cfg without touching the process logger.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stderr":
		sink = zapcore.AddSync(os.Stderr)
	case "stdout":
		sink = zapcore.AddSync(os.Stdout)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, sink, level)
	if cfg.Development {
		return zap.New(core, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
	}
	return zap.New(core, zap.AddCaller()), nil
}

// Initialize replaces the process logger
func Initialize(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// OrNop returns l, or the process logger, or a no-op logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	if Logger != nil {
		return Logger
	}
	return zap.NewNop()
}

// ForRun scopes a logger to one allocation run.
func ForRun(l *zap.Logger, runID string) *zap.Logger {
	return OrNop(l).With(zap.String("run_id", runID))
}

// Sync flushes the logger
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func init() {
	_ = Initialize(DefaultConfig())
}
