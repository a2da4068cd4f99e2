package evo

import (
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"qsoul/internal/model"
	"qsoul/internal/vibe"
)

// WeightedKind is one entry of the mutation draw table.
type WeightedKind struct {
	Kind   model.MutationKind
	Weight float64
}

const (
	dreamyImagShare = 0.5
	dreamyBonus     = 0.1
	sharpRealShare  = 0.8
	sharpParamBonus = 0.15
	sharpSwapBonus  = 0.05
)

// BaseWeights returns the unbiased draw table.
func BaseWeights() []WeightedKind {
	return []WeightedKind{
		{Kind: model.MutationParam, Weight: 0.4},
		{Kind: model.MutationSwap, Weight: 0.2},
		{Kind: model.MutationDelete, Weight: 0.1},
		{Kind: model.MutationDuplicate, Weight: 0.1},
		{Kind: model.MutationGeneFlip, Weight: 0.2},
	}
}

// BiasedWeights adjusts the base table for the modulation value and
// renormalises it to sum to 1. Only complex values bias the table: a large
// imaginary share favours gene flips and duplication ("dreamy"), a large real
// share favours jitter and swaps ("sharp").
func BiasedWeights(v complex128) []WeightedKind {
	table := BaseWeights()
	if mag := cmplx.Abs(v); vibe.IsComplex(v) && mag > 0 {
		imagShare := math.Abs(imag(v)) / mag
		realShare := math.Abs(real(v)) / mag
		if imagShare > dreamyImagShare {
			adjust(table, model.MutationGeneFlip, dreamyBonus)
			adjust(table, model.MutationDuplicate, dreamyBonus)
			adjust(table, model.MutationParam, -dreamyBonus)
		}
		if realShare > sharpRealShare {
			adjust(table, model.MutationParam, sharpParamBonus)
			adjust(table, model.MutationSwap, sharpSwapBonus)
		}
	}
	return normalize(table)
}

func adjust(table []WeightedKind, kind model.MutationKind, delta float64) {
	for i := range table {
		if table[i].Kind == kind {
			table[i].Weight += delta
			return
		}
	}
}

func normalize(table []WeightedKind) []WeightedKind {
	weights := make([]float64, len(table))
	for i, item := range table {
		weights[i] = math.Max(item.Weight, 0)
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return table
	}
	floats.Scale(1/total, weights)
	out := make([]WeightedKind, len(table))
	for i, item := range table {
		out[i] = WeightedKind{Kind: item.Kind, Weight: weights[i]}
	}
	return out
}

// DrawKind picks one kind proportionally to its weight.
func DrawKind(rng *rand.Rand, table []WeightedKind) model.MutationKind {
	if len(table) == 0 {
		return model.MutationNone
	}
	total := 0.0
	for _, item := range table {
		total += item.Weight
	}
	if total <= 0 {
		return model.MutationNone
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, item := range table {
		acc += item.Weight
		if pick <= acc {
			return item.Kind
		}
	}
	return table[len(table)-1].Kind
}
