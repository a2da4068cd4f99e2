// Package config loads run settings from defaults, an optional YAML file and
// QSOUL_-prefixed environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "QSOUL_"

var ErrInvalid = errors.New("invalid config")

type RunConfig struct {
	RunID            string  `yaml:"run_id" env:"RUN_ID"`
	Seed             int64   `yaml:"seed" env:"SEED"`
	Intensity        float64 `yaml:"intensity" env:"INTENSITY"`
	MaxSteps         int     `yaml:"max_steps" env:"MAX_STEPS"`
	Patience         int     `yaml:"patience" env:"PATIENCE"`
	BaseLearningRate float64 `yaml:"base_learning_rate" env:"BASE_LEARNING_RATE"`
	BaseMutationRate float64 `yaml:"base_mutation_rate" env:"BASE_MUTATION_RATE"`
	Light            float64 `yaml:"light" env:"LIGHT"`
	ParamCount       int     `yaml:"param_count" env:"PARAM_COUNT"`
	Genes            int     `yaml:"genes" env:"GENES"`
	Evaluator        string  `yaml:"evaluator" env:"EVALUATOR"`
	Qubits           int     `yaml:"qubits" env:"QUBITS"`
	Reps             int     `yaml:"reps" env:"REPS"`
	Noise            float64 `yaml:"noise" env:"NOISE"`
	Store            string  `yaml:"store" env:"STORE"`
	DBPath           string  `yaml:"db_path" env:"DB_PATH"`
	LogLevel         string  `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat        string  `yaml:"log_format" env:"LOG_FORMAT"`
	ExportDir        string  `yaml:"export_dir" env:"EXPORT_DIR"`
	OTelEndpoint     string  `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
}

func Default() RunConfig {
	return RunConfig{
		Intensity:        0.707,
		MaxSteps:         50,
		Patience:         10,
		BaseLearningRate: 0.1,
		BaseMutationRate: 0.3,
		Light:            1.0,
		ParamCount:       8,
		Genes:            3,
		Evaluator:        "ansatz",
		Qubits:           4,
		Reps:             1,
		Noise:            0.01,
		Store:            "memory",
		DBPath:           "qsoul.db",
		LogLevel:         "info",
		LogFormat:        "auto",
		ExportDir:        "exports",
	}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load layers an optional YAML file and the environment over the defaults.
// An empty path skips the file.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (c RunConfig) Validate() error {
	switch {
	case c.Intensity <= 0:
		return fmt.Errorf("%w: intensity must be > 0", ErrInvalid)
	case c.MaxSteps <= 0:
		return fmt.Errorf("%w: max_steps must be > 0", ErrInvalid)
	case c.Patience < 0:
		return fmt.Errorf("%w: patience must be >= 0", ErrInvalid)
	case c.BaseLearningRate <= 0:
		return fmt.Errorf("%w: base_learning_rate must be > 0", ErrInvalid)
	case c.BaseMutationRate <= 0 || c.BaseMutationRate > 1:
		return fmt.Errorf("%w: base_mutation_rate must be in (0, 1]", ErrInvalid)
	case c.Light <= 0:
		return fmt.Errorf("%w: light must be > 0", ErrInvalid)
	case c.ParamCount < 2:
		return fmt.Errorf("%w: param_count must be >= 2", ErrInvalid)
	case c.Genes < 0:
		return fmt.Errorf("%w: genes must be >= 0", ErrInvalid)
	case c.Noise < 0:
		return fmt.Errorf("%w: noise must be >= 0", ErrInvalid)
	}
	switch strings.ToLower(c.Evaluator) {
	case "ansatz":
		if c.Qubits < 1 || c.Qubits > 16 || c.Reps < 1 {
			return fmt.Errorf("%w: ansatz needs qubits in [1, 16] and reps >= 1", ErrInvalid)
		}
	case "quadratic":
	default:
		return fmt.Errorf("%w: unsupported evaluator %q", ErrInvalid, c.Evaluator)
	}
	switch strings.ToLower(c.Store) {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("%w: sqlite store needs db_path", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported store %q", ErrInvalid, c.Store)
	}
	return nil
}
