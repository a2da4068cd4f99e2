package vibe

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModulator(t *testing.T, seed int64, intensity float64) *Modulator {
	t.Helper()
	m, err := New(rand.New(rand.NewSource(seed)), intensity)
	require.NoError(t, err)
	return m
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, 0.5)
	require.Error(t, err)

	_, err = New(rand.New(rand.NewSource(1)), 0)
	require.Error(t, err)

	m := newTestModulator(t, 1, 0.8)
	assert.Equal(t, complex(1, 0), m.Value())
	assert.Equal(t, 0.8, m.Intensity())
}

func TestModulateFirstCallUsesInitialFeedback(t *testing.T) {
	m := newTestModulator(t, 7, 0.5)

	out := m.ModulateReal(2)

	// |last| starts at 1, so feedback is exactly 1 and |out| = 2*0.5*|kick|.
	mag := cmplx.Abs(out)
	assert.True(t, mag == 1 || mag == 0.5, "unexpected magnitude %v", mag)
	assert.Equal(t, out, m.Value())
}

func TestModulateStaysWithinClampBounds(t *testing.T) {
	signals := []float64{1e-15, 1e-9, 1e-3, 0.5, 1, 42, 1e5, 1e9, 1e15, -3, -1e12}
	for _, s := range signals {
		m := newTestModulator(t, 11, 1)
		for i := 0; i < 200; i++ {
			out := m.ModulateReal(s)
			mag := cmplx.Abs(out)
			require.LessOrEqual(t, mag, MaxMagnitude*(1+1e-12), "signal=%v", s)
			require.False(t, cmplx.IsNaN(out) || cmplx.IsInf(out), "signal=%v", s)
			if mag < MinMagnitude {
				require.Equal(t, complex(0.1*s, 0), out, "reset branch must key off the input")
			}
			require.NotZero(t, mag, "signal=%v", s)
		}
	}
}

func TestModulateRescalesHugeValuesPreservingPhase(t *testing.T) {
	m := newTestModulator(t, 3, 1)

	out := m.Modulate(complex(3e8, 4e8))

	assert.InDelta(t, MaxMagnitude, cmplx.Abs(out), 1e-6)
	ratio := out / complex(3e8, 4e8)
	// The kick only rotates by a multiple of 90 degrees.
	phaseShift := math.Mod(cmplx.Phase(ratio)+2*math.Pi, math.Pi/2)
	assert.True(t, phaseShift < 1e-9 || math.Pi/2-phaseShift < 1e-9, "phase changed by %v", cmplx.Phase(ratio))
}

func TestModulateResetsTinyValuesToScaledSignal(t *testing.T) {
	m := newTestModulator(t, 5, 1e-6)
	signal := 1e-6

	out := m.ModulateReal(signal)

	assert.Equal(t, complex(signal*0.1, 0), out)
	assert.Equal(t, out, m.Value())
}

func TestModulateZeroSignalResetsToZero(t *testing.T) {
	m := newTestModulator(t, 5, 0.7)

	assert.Equal(t, complex(0, 0), m.ModulateReal(0))
}

func TestModulateVariesForFixedInput(t *testing.T) {
	m := newTestModulator(t, 99, 0.8)

	seen := map[complex128]struct{}{}
	for i := 0; i < 50; i++ {
		seen[m.ModulateReal(1)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestModulateFeedbackDependsOnPreviousMagnitude(t *testing.T) {
	m := newTestModulator(t, 21, 1)

	prev := m.Magnitude()
	for i := 0; i < 20; i++ {
		out := m.ModulateReal(1)
		// For a unit signal and intensity, |out| = |kick| * (0.9 + 0.1*|prev|).
		ratio := cmplx.Abs(out) / (0.9 + 0.1*prev)
		assert.True(t, math.Abs(ratio-1) < 1e-12 || math.Abs(ratio-0.5) < 1e-12, "step %d: ratio=%v", i, ratio)
		prev = cmplx.Abs(out)
	}
}

func TestIsComplex(t *testing.T) {
	assert.False(t, IsComplex(complex(2, 0)))
	assert.True(t, IsComplex(complex(0, 0.5)))
}

func TestStateSnapshotsLastValue(t *testing.T) {
	m := newTestModulator(t, 3, 0.6)
	m.ModulateReal(0.8)

	state := m.State()
	assert.Equal(t, 0.6, state.Intensity)
	assert.Equal(t, m.Value(), state.LastValue())
	assert.InDelta(t, m.Magnitude(), state.Magnitude, 0)

	m.ModulateReal(0.8)
	assert.NotEqual(t, m.State(), state, "snapshot must not follow later updates")
}
