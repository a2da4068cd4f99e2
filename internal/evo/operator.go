package evo

import (
	"qsoul/internal/model"
)

// Operator is a vibe-gated mutation over the working genome. Operators read
// the modulation value but never advance the modulator. A call whose gate is
// closed returns the genome unchanged.
type Operator interface {
	Kind() model.MutationKind
	Applicable(genome model.Genome, vibe complex128) bool
	Apply(genome model.Genome, vibe complex128) model.Genome
}
