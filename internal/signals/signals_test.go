package signals

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsoul/internal/evo"
)

func TestFitness(t *testing.T) {
	assert.InDelta(t, 0.5, Fitness(nil), 0)
	assert.InDelta(t, 1, Fitness([]float64{0}), 1e-12)
	// only the last three count: mean(|-0.2|, 0.4, 0.6) = 0.4.
	assert.InDelta(t, 1/1.4, Fitness([]float64{9, -0.2, 0.4, 0.6}), 1e-12)
}

func TestGlucose(t *testing.T) {
	assert.InDelta(t, 1, Glucose(evo.SignalContext{Light: 1, Fitness: 1}, nil), 1e-12)
	assert.InDelta(t, 0.75, Glucose(evo.SignalContext{Light: 1, Fitness: 0.5}, nil), 1e-12)
	assert.InDelta(t, 2, Glucose(evo.SignalContext{Light: 2, Fitness: 7}, nil), 1e-12)
	assert.InDelta(t, minGlucose, Glucose(evo.SignalContext{Light: 0, Fitness: 1}, nil), 0)
}

func TestBaseShake(t *testing.T) {
	assert.InDelta(t, 0.1, BaseShake(nil), 0)
	assert.InDelta(t, 0.1, BaseShake([]float64{0.3}), 0)
	assert.InDelta(t, 0.15, BaseShake([]float64{0.3, 0.4}), 1e-12)
	assert.InDelta(t, 0.55, BaseShake([]float64{0, 3}), 1e-12)
}

func TestAnsatzEnergyAtZeroParamsIsOne(t *testing.T) {
	a, err := NewAnsatzEnergy(4, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, 8, a.NumParameters())

	e, err := a.Evaluate(context.Background(), make([]float64, 8))
	require.NoError(t, err)
	assert.InDelta(t, 1, e, 1e-12)
}

func TestAnsatzEnergyFlipAwayFromGroundState(t *testing.T) {
	a, err := NewAnsatzEnergy(4, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	params := make([]float64, 8)
	params[0] = math.Pi
	e, err := a.Evaluate(context.Background(), params)
	require.NoError(t, err)
	assert.InDelta(t, 0, e, 1e-12)
}

func TestAnsatzEnergySingleQubitMatchesClosedForm(t *testing.T) {
	a, err := NewAnsatzEnergy(1, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for _, p := range [][]float64{{0.3, 0.4}, {1.2, -0.2}, {2, 2}} {
		e, err := a.Evaluate(context.Background(), p)
		require.NoError(t, err)
		c := math.Cos((p[0] + p[1]) / 2)
		assert.InDelta(t, c*c, e, 1e-12, "params %v", p)
	}
}

func TestAnsatzEnergyEntanglerChangesAmplitudes(t *testing.T) {
	a, err := NewAnsatzEnergy(2, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// H-like rotations on both qubits, CZ, then undo: CZ makes the result
	// differ from the identity circuit.
	half := math.Pi / 2
	e, err := a.Evaluate(context.Background(), []float64{half, half, -half, -half})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, e, 1e-12)
}

func TestAnsatzEnergyMismatchIsWorstCase(t *testing.T) {
	a, err := NewAnsatzEnergy(4, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	e, err := a.Evaluate(context.Background(), make([]float64, 9))
	require.NoError(t, err)
	assert.InDelta(t, 1, e, 0)
}

func TestAnsatzEnergyNoiseIsGaussian(t *testing.T) {
	a, err := NewAnsatzEnergy(2, 1, 0.1, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	sum, sq := 0.0, 0.0
	const n = 5000
	for i := 0; i < n; i++ {
		e, err := a.Evaluate(context.Background(), make([]float64, 4))
		require.NoError(t, err)
		sum += e - 1
		sq += (e - 1) * (e - 1)
	}
	assert.InDelta(t, 0, sum/n, 0.01)
	assert.InDelta(t, 0.01, sq/n, 0.002)
}

func TestNewAnsatzEnergyValidates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, tc := range []struct {
		qubits, reps int
		noise        float64
		rng          *rand.Rand
	}{
		{0, 1, 0, rng},
		{MaxQubits + 1, 1, 0, rng},
		{2, -1, 0, rng},
		{2, 1, -0.1, rng},
		{2, 1, 0, nil},
	} {
		_, err := NewAnsatzEnergy(tc.qubits, tc.reps, tc.noise, tc.rng)
		require.Error(t, err, "%+v", tc)
	}
}

func TestQuadraticEnergy(t *testing.T) {
	q := &QuadraticEnergy{}

	e, err := q.Evaluate(context.Background(), []float64{1, -3})
	require.NoError(t, err)
	assert.InDelta(t, 5, e, 1e-12)
}

func TestSequenceRepeatsLastEnergy(t *testing.T) {
	s, err := NewSequence(0.5, 0.3)
	require.NoError(t, err)

	var got []float64
	for i := 0; i < 4; i++ {
		e, err := s.Evaluate(context.Background(), nil)
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, []float64{0.5, 0.3, 0.3, 0.3}, got)

	_, err = NewSequence()
	require.ErrorIs(t, err, ErrEmptySequence)
}

func TestEvaluatorsHonourCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := NewAnsatzEnergy(2, 1, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = a.Evaluate(ctx, make([]float64, 4))
	require.True(t, errors.Is(err, context.Canceled))

	_, err = (&QuadraticEnergy{}).Evaluate(ctx, []float64{1, 2})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewEvaluator(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	eval, n, err := NewEvaluator(EvaluatorOptions{Kind: "ansatz", Qubits: 3, Reps: 2, Rand: rng})
	require.NoError(t, err)
	assert.IsType(t, &AnsatzEnergy{}, eval)
	assert.Equal(t, 9, n)

	eval, n, err = NewEvaluator(EvaluatorOptions{Kind: "Quadratic", Rand: rng})
	require.NoError(t, err)
	assert.IsType(t, &QuadraticEnergy{}, eval)
	assert.Zero(t, n)

	_, _, err = NewEvaluator(EvaluatorOptions{Kind: "vqe", Rand: rng})
	require.ErrorIs(t, err, ErrUnknownEvaluator)
}
