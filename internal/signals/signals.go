// Package signals holds the default collaborators a search run is wired with:
// the fitness, resource and shake signals the step controller reads, and the
// energy evaluators the search loop scores parameter vectors with.
package signals

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"qsoul/internal/evo"
)

const (
	fitnessWindow  = 3
	emptyFitness   = 0.5
	minGlucose     = 0.05
	restingShake   = 0.1
	shakeFloor     = 0.05
	shakeMaxJitter = 0.5
)

// Fitness maps the recent energies onto (0, 1]: lower energy is fitter.
func Fitness(history []float64) float64 {
	if len(history) == 0 {
		return emptyFitness
	}
	window := history[max(0, len(history)-fitnessWindow):]
	abs := make([]float64, len(window))
	for i, e := range window {
		abs[i] = math.Abs(e)
	}
	return 1 / (1 + stat.Mean(abs, nil))
}

// Glucose is the photosynthetic resource signal: light scaled by how fit the
// run currently is.
func Glucose(ctx evo.SignalContext, _ []float64) float64 {
	fitness := math.Min(1, math.Max(0, ctx.Fitness))
	return math.Max(minGlucose, ctx.Light*(0.5+0.5*fitness))
}

// BaseShake grows with the last energy jump.
func BaseShake(history []float64) float64 {
	n := len(history)
	if n < 2 {
		return restingShake
	}
	return shakeFloor + math.Min(shakeMaxJitter, math.Abs(history[n-1]-history[n-2]))
}

var (
	_ evo.FitnessFn  = Fitness
	_ evo.ResourceFn = Glucose
	_ evo.ShakeFn    = BaseShake
)
