package evo

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"qsoul/internal/model"
	"qsoul/internal/vibe"
)

// SignalContext carries the ambient inputs of the resource signal.
type SignalContext struct {
	Light   float64
	Fitness float64
}

type (
	FitnessFn  func(history []float64) float64
	ResourceFn func(ctx SignalContext, history []float64) float64
	ShakeFn    func(history []float64) float64
)

const (
	DefaultBaseLearningRate = 0.1
	DefaultBaseMutationRate = 0.3
	DefaultLight            = 1.0

	dreamAmplitude   = 0.05
	stirBase         = 0.02
	stirSpreadFactor = 0.05
	stirMinHistory   = 4
	stirWindow       = 3
	shakeBase        = 0.8
	shakeVibeFactor  = 0.5
	mutationRateBase = 0.8
	mutationRateVibe = 0.4
)

type ControllerConfig struct {
	Modulator        *vibe.Modulator
	Operators        *OperatorSet
	Rand             *rand.Rand
	Fitness          FitnessFn
	Resource         ResourceFn
	BaseShake        ShakeFn
	BaseLearningRate float64
	BaseMutationRate float64
	Light            float64
}

// StepOutcome reports what one controller step did. Mutation names the kind
// that was drawn (MutationNone when no draw happened); Applied is false when
// the drawn operator's gate was closed.
type StepOutcome struct {
	Genome        model.Genome
	Mutation      model.MutationKind
	Applied       bool
	Fitness       float64
	Resource      float64
	LearningRate  float64
	Shake         float64
	MutationRate  float64
	VibeMagnitude float64
}

type StepController struct {
	cfg ControllerConfig
}

func NewStepController(cfg ControllerConfig) (*StepController, error) {
	if cfg.Modulator == nil {
		return nil, errors.New("modulator is required")
	}
	if cfg.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if cfg.Fitness == nil || cfg.Resource == nil || cfg.BaseShake == nil {
		return nil, errors.New("fitness, resource and shake signals are required")
	}
	if cfg.BaseLearningRate < 0 {
		return nil, fmt.Errorf("%w: base learning rate must be >= 0", ErrInvalidConfig)
	}
	if cfg.BaseMutationRate < 0 || cfg.BaseMutationRate > 1 {
		return nil, fmt.Errorf("%w: base mutation rate must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.Operators == nil {
		set, err := NewOperatorSet(DefaultOperators(cfg.Rand)...)
		if err != nil {
			return nil, err
		}
		cfg.Operators = set
	}
	for _, kind := range model.MutationKinds {
		if _, err := cfg.Operators.Resolve(kind); err != nil {
			return nil, err
		}
	}
	return &StepController{cfg: cfg}, nil
}

// Step advances the working genome by one controller step. The modulator is
// advanced exactly once, by the shake computation.
func (c *StepController) Step(genome model.Genome, history []float64) StepOutcome {
	out := StepOutcome{Genome: genome.Clone(), Mutation: model.MutationNone}

	out.Fitness = c.cfg.Fitness(history)
	out.Resource = c.cfg.Resource(SignalContext{Light: c.cfg.Light, Fitness: out.Fitness}, history)
	out.LearningRate = c.cfg.BaseLearningRate * out.Resource

	pulse := c.cfg.Modulator.ModulateReal(1)
	out.Shake = c.cfg.BaseShake(history) * (shakeBase + shakeVibeFactor*cmplx.Abs(pulse))
	out.VibeMagnitude = c.cfg.Modulator.Magnitude()

	params := out.Genome.Params
	for i := range params {
		params[i] += out.LearningRate * out.Shake * c.cfg.Rand.NormFloat64()
	}
	dreamShift(params, out.VibeMagnitude)
	stirShift(params, history)

	out.MutationRate = c.cfg.BaseMutationRate * (mutationRateBase + mutationRateVibe*out.VibeMagnitude)
	if c.cfg.Rand.Float64() >= out.MutationRate {
		return out
	}

	value := c.cfg.Modulator.Value()
	out.Mutation = DrawKind(c.cfg.Rand, BiasedWeights(value))
	op, err := c.cfg.Operators.Resolve(out.Mutation)
	if err != nil {
		// NewStepController guarantees every selectable kind resolves.
		return out
	}
	out.Applied = op.Applicable(out.Genome, value)
	out.Genome = op.Apply(out.Genome, value)
	return out
}

// dreamShift adds the deterministic positional term scaled by the vibe.
func dreamShift(params []float64, vibeMagnitude float64) {
	scale := dreamAmplitude * (0.5 + 0.5*vibeMagnitude)
	for i := range params {
		params[i] += math.Sin(float64(i)) * scale
	}
}

// stirShift adds the second positional term, widened by the spread of the
// three most recent energies once enough history exists.
func stirShift(params []float64, history []float64) {
	scale := stirBase
	if len(history) >= stirMinHistory {
		scale += stirSpreadFactor * recentSpread(history, stirWindow)
	}
	for i := range params {
		params[i] += math.Sin(float64(i)) * scale
	}
}

// recentSpread is the population standard deviation of the last n entries.
func recentSpread(history []float64, n int) float64 {
	if len(history) < n {
		n = len(history)
	}
	if n == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(history[len(history)-n:], nil)
	return std
}

func (c *StepController) Modulator() *vibe.Modulator {
	return c.cfg.Modulator
}
