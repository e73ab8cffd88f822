package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/core/types"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Engine.Parallelism)
	assert.Equal(t, 0.001, cfg.Engine.RatioTolerance)
	assert.Equal(t, types.RoundingNone, cfg.Rounding.Method)
	assert.Equal(t, "table", cfg.Output.DefaultFormat)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Engine.ChainStages = true
	cfg.Rounding = types.Rounding{Method: types.RoundingHalfUp, Precision: 0}
	cfg.Storage.Backend = "file"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Engine.ChainStages)
	assert.Equal(t, types.RoundingHalfUp, loaded.Rounding.Method)
	assert.Equal(t, "file", loaded.Storage.Backend)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Default().Save(path))

	t.Setenv("ABC_STORAGE_BACKEND", "memory")
	t.Setenv("ABC_ENGINE_PARALLELISM", "4")
	t.Setenv("ABC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
