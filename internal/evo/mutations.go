package evo

import (
	"math"
	"math/cmplx"
	"math/rand"

	"qsoul/internal/model"
)

const (
	// MinParams is the shortest parameter vector the search keeps.
	MinParams = 2

	jitterBaseStd    = 0.05
	jitterVibeStd    = 0.05
	swapGate         = 0.5
	deleteGate       = 0.3
	duplicateGate    = 0.8
	geneFlipImagGate = 0.3
)

// ParamJitter adds independent Gaussian noise to every parameter. The noise
// widens with the modulation magnitude.
type ParamJitter struct {
	Rand *rand.Rand
}

func (o *ParamJitter) Kind() model.MutationKind {
	return model.MutationParam
}

func (o *ParamJitter) Applicable(genome model.Genome, _ complex128) bool {
	return len(genome.Params) > 0
}

func (o *ParamJitter) Apply(genome model.Genome, vibe complex128) model.Genome {
	if !o.Applicable(genome, vibe) {
		return genome
	}
	std := jitterBaseStd + jitterVibeStd*cmplx.Abs(vibe)
	mutated := genome.Clone()
	for i := range mutated.Params {
		mutated.Params[i] += o.Rand.NormFloat64() * std
	}
	return mutated
}

// Swap exchanges two distinct parameters when |vibe| > 0.5.
type Swap struct {
	Rand *rand.Rand
}

func (o *Swap) Kind() model.MutationKind {
	return model.MutationSwap
}

func (o *Swap) Applicable(genome model.Genome, vibe complex128) bool {
	return len(genome.Params) >= 2 && cmplx.Abs(vibe) > swapGate
}

func (o *Swap) Apply(genome model.Genome, vibe complex128) model.Genome {
	if !o.Applicable(genome, vibe) {
		return genome
	}
	n := len(genome.Params)
	i := o.Rand.Intn(n)
	j := o.Rand.Intn(n - 1)
	if j >= i {
		j++
	}
	mutated := genome.Clone()
	mutated.Params[i], mutated.Params[j] = mutated.Params[j], mutated.Params[i]
	return mutated
}

// Delete removes one parameter when |vibe| < 0.3, never shrinking the vector
// below MinParams.
type Delete struct {
	Rand *rand.Rand
}

func (o *Delete) Kind() model.MutationKind {
	return model.MutationDelete
}

func (o *Delete) Applicable(genome model.Genome, vibe complex128) bool {
	return len(genome.Params) > MinParams && cmplx.Abs(vibe) < deleteGate
}

func (o *Delete) Apply(genome model.Genome, vibe complex128) model.Genome {
	if !o.Applicable(genome, vibe) {
		return genome
	}
	idx := o.Rand.Intn(len(genome.Params))
	mutated := genome.Clone()
	mutated.Params = append(mutated.Params[:idx], mutated.Params[idx+1:]...)
	return mutated
}

// Duplicate inserts a copy of one parameter right after itself when
// |vibe| > 0.8.
type Duplicate struct {
	Rand *rand.Rand
}

func (o *Duplicate) Kind() model.MutationKind {
	return model.MutationDuplicate
}

func (o *Duplicate) Applicable(genome model.Genome, vibe complex128) bool {
	return len(genome.Params) > 0 && cmplx.Abs(vibe) > duplicateGate
}

func (o *Duplicate) Apply(genome model.Genome, vibe complex128) model.Genome {
	if !o.Applicable(genome, vibe) {
		return genome
	}
	idx := o.Rand.Intn(len(genome.Params))
	mutated := genome.Clone()
	params := make([]float64, 0, len(mutated.Params)+1)
	params = append(params, mutated.Params[:idx+1]...)
	params = append(params, mutated.Params[idx])
	params = append(params, mutated.Params[idx+1:]...)
	mutated.Params = params
	return mutated
}

// GeneFlip flips one gene bit. The gate uses the absolute imaginary part of
// the modulation value, not its share of the magnitude.
type GeneFlip struct {
	Rand *rand.Rand
}

func (o *GeneFlip) Kind() model.MutationKind {
	return model.MutationGeneFlip
}

func (o *GeneFlip) Applicable(genome model.Genome, vibe complex128) bool {
	return len(genome.Genes) > 0 && math.Abs(imag(vibe)) > geneFlipImagGate
}

func (o *GeneFlip) Apply(genome model.Genome, vibe complex128) model.Genome {
	if !o.Applicable(genome, vibe) {
		return genome
	}
	idx := o.Rand.Intn(len(genome.Genes))
	mutated := genome.Clone()
	mutated.Genes[idx] = 1 - mutated.Genes[idx]
	return mutated
}

// DefaultOperators builds the five operators over one shared random source.
func DefaultOperators(rng *rand.Rand) []Operator {
	return []Operator{
		&ParamJitter{Rand: rng},
		&Swap{Rand: rng},
		&Delete{Rand: rng},
		&Duplicate{Rand: rng},
		&GeneFlip{Rand: rng},
	}
}
