package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.707, cfg.Intensity)
	assert.Equal(t, 10, cfg.Patience)
	assert.Equal(t, "ansatz", cfg.Evaluator)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: 80\nevaluator: quadratic\nnoise: 0\nseed: 7\n"), 0o644))
	t.Setenv("QSOUL_MAX_STEPS", "120")
	t.Setenv("QSOUL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.MaxSteps)
	assert.Equal(t, "quadratic", cfg.Evaluator)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.0, cfg.Noise)
	assert.Equal(t, 0.1, cfg.BaseLearningRate, "untouched fields keep defaults")
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: [oops"), 0o644))
	_, err = Load(path)
	require.Error(t, err)

	t.Setenv("QSOUL_SEED", "not-a-number")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*RunConfig){
		"intensity":     func(c *RunConfig) { c.Intensity = 0 },
		"max steps":     func(c *RunConfig) { c.MaxSteps = 0 },
		"patience":      func(c *RunConfig) { c.Patience = -1 },
		"mutation rate": func(c *RunConfig) { c.BaseMutationRate = 1.2 },
		"param count":   func(c *RunConfig) { c.ParamCount = 1 },
		"evaluator":     func(c *RunConfig) { c.Evaluator = "vqe" },
		"qubits":        func(c *RunConfig) { c.Qubits = 0 },
		"store":         func(c *RunConfig) { c.Store = "redis" },
		"db path":       func(c *RunConfig) { c.Store, c.DBPath = "sqlite", " " },
	} {
		cfg := Default()
		mutate(&cfg)
		require.ErrorIs(t, cfg.Validate(), ErrInvalid, name)
	}
}
