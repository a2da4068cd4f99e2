// Package vibe implements the feedback modulator: a stateful complex-valued
// transform whose output depends on the input signal, a random kick and its
// own previous output.
package vibe

import (
	"errors"
	"math/cmplx"
	"math/rand"

	"qsoul/internal/model"
)

const (
	DefaultIntensity = 0.707

	// MaxMagnitude caps |value|; larger values are rescaled onto this circle.
	MaxMagnitude = 1e6
	// MinMagnitude is the floor below which the modulator resets to 0.1*signal.
	MinMagnitude = 1e-10

	initialValue = complex(1, 0)
	resetFactor  = 0.1
)

var kicks = [...]complex128{1, -1, 0.5i, -0.5i}

// Modulator carries the memory of its last output. It is not safe for
// concurrent use; a search run owns exactly one.
type Modulator struct {
	rng       *rand.Rand
	intensity float64
	last      complex128
}

func New(rng *rand.Rand, intensity float64) (*Modulator, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if intensity <= 0 {
		return nil, errors.New("intensity must be > 0")
	}
	return &Modulator{rng: rng, intensity: intensity, last: initialValue}, nil
}

// Modulate advances the modulator by one event and returns the new value.
func (m *Modulator) Modulate(signal complex128) complex128 {
	kick := kicks[m.rng.Intn(len(kicks))]
	value := signal * complex(m.intensity, 0) * kick

	feedback := 0.9 + 0.1*cmplx.Abs(m.last)
	value *= complex(feedback, 0)

	if mag := cmplx.Abs(value); mag > MaxMagnitude {
		value *= complex(MaxMagnitude/mag, 0)
	} else if mag < MinMagnitude {
		value = signal * resetFactor
	}

	m.last = value
	return value
}

// ModulateReal is Modulate for a real-valued signal.
func (m *Modulator) ModulateReal(signal float64) complex128 {
	return m.Modulate(complex(signal, 0))
}

func (m *Modulator) Value() complex128 {
	return m.last
}

func (m *Modulator) Magnitude() float64 {
	return cmplx.Abs(m.last)
}

func (m *Modulator) Intensity() float64 {
	return m.intensity
}

func (m *Modulator) State() model.ModulatorState {
	return model.ModulatorState{
		Intensity: m.intensity,
		LastReal:  real(m.last),
		LastImag:  imag(m.last),
		Magnitude: cmplx.Abs(m.last),
	}
}

// IsComplex reports whether v carries an imaginary component.
func IsComplex(v complex128) bool {
	return imag(v) != 0
}
