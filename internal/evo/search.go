package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qsoul/internal/logging"
	"qsoul/internal/model"
)

const (
	DefaultPatience = 10
	DefaultMaxSteps = 50

	// minSignal floors the energy magnitude fed into the modulator.
	minSignal = 1e-6

	tracerName = "qsoul/internal/evo"
)

var (
	ErrInvalidConfig   = errors.New("invalid search config")
	ErrInvalidGenome   = errors.New("invalid genome")
	ErrNonFiniteEnergy = errors.New("evaluator returned a non-finite energy")
)

// Evaluator produces the next noisy energy for a parameter vector.
type Evaluator interface {
	Evaluate(ctx context.Context, params []float64) (float64, error)
}

type EvaluatorFunc func(ctx context.Context, params []float64) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, params []float64) (float64, error) {
	return f(ctx, params)
}

type SearchConfig struct {
	Evaluator  Evaluator
	Controller *StepController
	MaxSteps   int
	Patience   int
	DreamLog   DreamSink
	Observers  []Observer
	Logger     logrus.FieldLogger
	Tracer     trace.Tracer
}

// RunResult is the observable output of a halted run. EnergyHistory,
// VibeTrace and Steps hold one entry per completed step.
type RunResult struct {
	State         model.RunState
	StepsRun      int
	EnergyHistory []float64
	VibeTrace     []float64
	Steps         []model.StepRecord
	Best          model.BestRecord
	FinalGenome   model.Genome
	Modulator     model.ModulatorState
}

type SearchLoop struct {
	cfg SearchConfig
}

func NewSearchLoop(cfg SearchConfig) (*SearchLoop, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidConfig)
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("%w: step controller is required", ErrInvalidConfig)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be > 0", ErrInvalidConfig)
	}
	if cfg.Patience < 0 {
		return nil, fmt.Errorf("%w: patience must be >= 0", ErrInvalidConfig)
	}
	if cfg.Patience == 0 {
		cfg.Patience = DefaultPatience
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &SearchLoop{cfg: cfg}, nil
}

func ValidateGenome(genome model.Genome) error {
	if len(genome.Params) < MinParams {
		return fmt.Errorf("%w: need at least %d params, got %d", ErrInvalidGenome, MinParams, len(genome.Params))
	}
	if len(genome.Genes) != len(genome.Thetas) {
		return fmt.Errorf("%w: genes=%d thetas=%d", ErrInvalidGenome, len(genome.Genes), len(genome.Thetas))
	}
	for i, p := range genome.Params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: param %d is not finite", ErrInvalidGenome, i)
		}
	}
	for i, g := range genome.Genes {
		if g != 0 && g != 1 {
			return fmt.Errorf("%w: gene %d must be 0 or 1, got %d", ErrInvalidGenome, i, g)
		}
	}
	return nil
}

// Run drives the search until the patience or step budget is exhausted. If ctx
// is cancelled the partial result is returned with State Aborted alongside
// ctx.Err(); an evaluator failure or a non-finite energy ends it as Failed.
func (l *SearchLoop) Run(ctx context.Context, initial model.Genome) (RunResult, error) {
	if err := ValidateGenome(initial); err != nil {
		return RunResult{}, err
	}

	ctx, span := l.cfg.Tracer.Start(ctx, "qsoul.search.run", trace.WithAttributes(
		attribute.Int("qsoul.max_steps", l.cfg.MaxSteps),
		attribute.Int("qsoul.patience", l.cfg.Patience),
		attribute.Int("qsoul.params", len(initial.Params)),
	))
	defer span.End()

	modulator := l.cfg.Controller.Modulator()
	obs := observers(l.cfg.Observers)
	genome := initial.Clone()
	result := RunResult{
		State:         model.RunStateRunning,
		EnergyHistory: make([]float64, 0, l.cfg.MaxSteps),
		VibeTrace:     make([]float64, 0, l.cfg.MaxSteps),
		Steps:         make([]model.StepRecord, 0, l.cfg.MaxSteps),
		Best:          model.BestRecord{Step: -1, Energy: math.Inf(1)},
	}
	stagnation := 0

	l.cfg.Logger.WithFields(logrus.Fields{
		"max_steps": l.cfg.MaxSteps,
		"patience":  l.cfg.Patience,
		"params":    len(genome.Params),
		"genes":     len(genome.Genes),
	}).Info("search run started")
	l.dream("run_start", map[string]any{
		"max_steps": l.cfg.MaxSteps,
		"patience":  l.cfg.Patience,
		"params":    len(genome.Params),
		"genes":     len(genome.Genes),
	})

	fail := func(state model.RunState, err error) (RunResult, error) {
		result.State = state
		result.FinalGenome = genome
		result.Modulator = modulator.State()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	for result.State == model.RunStateRunning {
		if err := ctx.Err(); err != nil {
			return fail(model.RunStateAborted, err)
		}

		step := result.StepsRun
		energy, err := l.cfg.Evaluator.Evaluate(ctx, genome.Params)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if !errors.Is(err, ctxErr) {
					err = fmt.Errorf("%w: %w", ctxErr, err)
				}
				return fail(model.RunStateAborted, fmt.Errorf("evaluate step %d: %w", step, err))
			}
			return fail(model.RunStateFailed, fmt.Errorf("evaluate step %d: %w", step, err))
		}
		if math.IsNaN(energy) || math.IsInf(energy, 0) {
			return fail(model.RunStateFailed, fmt.Errorf("%w: step %d: %v", ErrNonFiniteEnergy, step, energy))
		}
		result.EnergyHistory = append(result.EnergyHistory, energy)

		value := modulator.ModulateReal(math.Max(math.Abs(energy), minSignal))
		vibeMagnitude := cmplx.Abs(value)
		result.VibeTrace = append(result.VibeTrace, vibeMagnitude)

		evaluated := genome.Clone()
		outcome := l.cfg.Controller.Step(genome, result.EnergyHistory)
		genome = outcome.Genome

		record := model.StepRecord{
			Step:          step,
			Energy:        energy,
			Params:        append([]float64(nil), genome.Params...),
			Genes:         append([]int(nil), genome.Genes...),
			Mutation:      outcome.Mutation,
			Applied:       outcome.Applied,
			VibeMagnitude: vibeMagnitude,
		}
		result.Steps = append(result.Steps, record)
		l.dream("evolution_step", map[string]any{
			"step":       step,
			"energy":     energy,
			"vibe":       vibeMagnitude,
			"vibe_level": soulVibeLevel(energy),
			"depth":      soulDepth(step),
			"mutation":   outcome.Mutation.String(),
			"applied":    outcome.Applied,
		})

		if energy < result.Best.Energy {
			result.Best = model.BestRecord{
				Step:   step,
				Energy: energy,
				Params: evaluated.Params,
				Genes:  evaluated.Genes,
			}
			stagnation = 0
			span.AddEvent("new_best", trace.WithAttributes(
				attribute.Int("qsoul.step", step),
				attribute.Float64("qsoul.energy", energy),
			))
			l.cfg.Logger.WithFields(logrus.Fields{"step": step, "energy": energy}).Debug("new best")
			l.dream("new_best", map[string]any{"step": step, "energy": energy})
		} else {
			stagnation++
		}

		result.StepsRun++
		obs.step(record)

		switch {
		case stagnation >= l.cfg.Patience:
			result.State = model.RunStateStoppedByStagnation
		case result.StepsRun >= l.cfg.MaxSteps:
			result.State = model.RunStateStoppedByBudget
		}
	}

	result.FinalGenome = genome
	result.Modulator = modulator.State()
	span.SetAttributes(
		attribute.String("qsoul.state", string(result.State)),
		attribute.Int("qsoul.steps_run", result.StepsRun),
		attribute.Int("qsoul.best_step", result.Best.Step),
	)
	l.cfg.Logger.WithFields(logrus.Fields{
		"state":       result.State,
		"steps":       result.StepsRun,
		"best_step":   result.Best.Step,
		"best_energy": result.Best.Energy,
	}).Info("search run halted")
	l.dream("halt", map[string]any{
		"state":       string(result.State),
		"steps":       result.StepsRun,
		"best_step":   result.Best.Step,
		"best_energy": result.Best.Energy,
	})
	obs.halt(result)
	return result, nil
}

func (l *SearchLoop) dream(event string, metadata map[string]any) {
	if l.cfg.DreamLog == nil {
		return
	}
	if _, err := l.cfg.DreamLog.Append(event, metadata); err != nil {
		l.cfg.Logger.WithError(err).WithField("event", event).Warn("dream log append failed")
	}
}
