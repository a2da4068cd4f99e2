package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"qsoul/internal/evo"
	"qsoul/internal/logging"
)

const (
	EvaluatorAnsatz    = "ansatz"
	EvaluatorQuadratic = "quadratic"

	// MaxQubits bounds the state vector at 2^16 amplitudes.
	MaxQubits = 16

	worstEnergy = 1.0
)

var (
	ErrUnknownEvaluator = errors.New("unknown evaluator")
	ErrEmptySequence    = errors.New("sequence evaluator needs at least one energy")
)

// AnsatzEnergy scores parameters as the probability of measuring |0…0⟩ after
// a TwoLocal circuit: alternating RY rotation layers and linear CZ
// entanglement, repeated Reps times and closed by a final rotation layer.
type AnsatzEnergy struct {
	Qubits int
	Reps   int
	Noise  float64
	Rand   *rand.Rand
	Logger logrus.FieldLogger
}

func NewAnsatzEnergy(qubits, reps int, noise float64, rng *rand.Rand) (*AnsatzEnergy, error) {
	if qubits < 1 || qubits > MaxQubits {
		return nil, fmt.Errorf("qubits must be in [1, %d], got %d", MaxQubits, qubits)
	}
	if reps < 0 {
		return nil, fmt.Errorf("reps must be >= 0, got %d", reps)
	}
	if noise < 0 {
		return nil, fmt.Errorf("noise must be >= 0, got %v", noise)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	return &AnsatzEnergy{Qubits: qubits, Reps: reps, Noise: noise, Rand: rng}, nil
}

// NumParameters is the rotation count of the circuit.
func (a *AnsatzEnergy) NumParameters() int {
	return a.Qubits * (a.Reps + 1)
}

// Evaluate returns the worst-case energy when params no longer bind to the
// circuit, which happens once delete or duplicate has changed their count.
func (a *AnsatzEnergy) Evaluate(ctx context.Context, params []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(params) != a.NumParameters() {
		a.logger().WithFields(logrus.Fields{
			"want": a.NumParameters(),
			"got":  len(params),
		}).Debug("parameter count does not bind to ansatz; using worst-case energy")
		return worstEnergy + a.noise(), nil
	}
	amps := a.statevector(params)
	return amps[0]*amps[0] + a.noise(), nil
}

func (a *AnsatzEnergy) statevector(params []float64) []float64 {
	amps := make([]float64, 1<<a.Qubits)
	amps[0] = 1
	next := 0
	for layer := 0; layer <= a.Reps; layer++ {
		for q := 0; q < a.Qubits; q++ {
			applyRY(amps, q, params[next])
			next++
		}
		if layer < a.Reps {
			for q := 0; q+1 < a.Qubits; q++ {
				applyCZ(amps, q, q+1)
			}
		}
	}
	return amps
}

func (a *AnsatzEnergy) noise() float64 {
	if a.Noise == 0 {
		return 0
	}
	return a.Rand.NormFloat64() * a.Noise
}

func (a *AnsatzEnergy) logger() logrus.FieldLogger {
	if a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

// applyRY rotates qubit q by theta. Qubit 0 is the least significant bit.
func applyRY(amps []float64, q int, theta float64) {
	bit := 1 << q
	c, s := math.Cos(theta/2), math.Sin(theta/2)
	for i := range amps {
		if i&bit != 0 {
			continue
		}
		a0, a1 := amps[i], amps[i|bit]
		amps[i] = c*a0 - s*a1
		amps[i|bit] = s*a0 + c*a1
	}
}

func applyCZ(amps []float64, q1, q2 int) {
	mask := 1<<q1 | 1<<q2
	for i := range amps {
		if i&mask == mask {
			amps[i] = -amps[i]
		}
	}
}

// QuadraticEnergy is the mean squared parameter plus noise; its minimum sits
// at the origin whatever the vector length.
type QuadraticEnergy struct {
	Noise float64
	Rand  *rand.Rand
}

func (q *QuadraticEnergy) Evaluate(ctx context.Context, params []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(params) == 0 {
		return worstEnergy, nil
	}
	energy := floats.Dot(params, params) / float64(len(params))
	if q.Noise > 0 && q.Rand != nil {
		energy += q.Rand.NormFloat64() * q.Noise
	}
	return energy, nil
}

// Sequence replays a fixed list of energies and then repeats the last one.
type Sequence struct {
	mu       sync.Mutex
	energies []float64
	next     int
}

func NewSequence(energies ...float64) (*Sequence, error) {
	if len(energies) == 0 {
		return nil, ErrEmptySequence
	}
	return &Sequence{energies: append([]float64(nil), energies...)}, nil
}

func (s *Sequence) Evaluate(ctx context.Context, _ []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := min(s.next, len(s.energies)-1)
	s.next++
	return s.energies[idx], nil
}

type EvaluatorOptions struct {
	Kind   string
	Qubits int
	Reps   int
	Noise  float64
	Rand   *rand.Rand
	Logger logrus.FieldLogger
}

// NewEvaluator builds a named evaluator and the parameter count a fresh
// genome should start with.
func NewEvaluator(opts EvaluatorOptions) (evo.Evaluator, int, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", EvaluatorAnsatz:
		a, err := NewAnsatzEnergy(opts.Qubits, opts.Reps, opts.Noise, opts.Rand)
		if err != nil {
			return nil, 0, err
		}
		a.Logger = opts.Logger
		return a, a.NumParameters(), nil
	case EvaluatorQuadratic:
		if opts.Rand == nil {
			return nil, 0, errors.New("random source is required")
		}
		return &QuadraticEnergy{Noise: opts.Noise, Rand: opts.Rand}, 0, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownEvaluator, opts.Kind)
	}
}
