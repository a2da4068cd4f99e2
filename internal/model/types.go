package model

import (
	"fmt"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// MutationKind names the structural change a step attempted.
type MutationKind int

const (
	MutationNone MutationKind = iota
	MutationParam
	MutationSwap
	MutationDelete
	MutationDuplicate
	MutationGeneFlip
)

// MutationKinds lists the selectable kinds in draw order.
var MutationKinds = []MutationKind{
	MutationParam,
	MutationSwap,
	MutationDelete,
	MutationDuplicate,
	MutationGeneFlip,
}

func (k MutationKind) String() string {
	switch k {
	case MutationNone:
		return "none"
	case MutationParam:
		return "param"
	case MutationSwap:
		return "swap"
	case MutationDelete:
		return "delete"
	case MutationDuplicate:
		return "duplicate"
	case MutationGeneFlip:
		return "gene_flip"
	default:
		return fmt.Sprintf("mutation(%d)", int(k))
	}
}

func ParseMutationKind(s string) (MutationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return MutationNone, nil
	case "param":
		return MutationParam, nil
	case "swap":
		return MutationSwap, nil
	case "delete":
		return MutationDelete, nil
	case "duplicate":
		return MutationDuplicate, nil
	case "gene_flip", "gene-flip":
		return MutationGeneFlip, nil
	default:
		return MutationNone, fmt.Errorf("unknown mutation kind: %q", s)
	}
}

func (k MutationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MutationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMutationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Genome is the working search state: a real-valued parameter vector plus a
// binary gene vector with its parallel theta angles.
type Genome struct {
	Params []float64 `json:"params"`
	Genes  []int     `json:"genes"`
	Thetas []float64 `json:"thetas"`
}

func (g Genome) Clone() Genome {
	return Genome{
		Params: append([]float64(nil), g.Params...),
		Genes:  append([]int(nil), g.Genes...),
		Thetas: append([]float64(nil), g.Thetas...),
	}
}

// ModulatorState is a snapshot of a feedback modulator. The last value is
// split into real and imaginary parts so the snapshot encodes as JSON.
type ModulatorState struct {
	Intensity float64 `json:"intensity"`
	LastReal  float64 `json:"last_real"`
	LastImag  float64 `json:"last_imag"`
	Magnitude float64 `json:"magnitude"`
}

func (s ModulatorState) LastValue() complex128 {
	return complex(s.LastReal, s.LastImag)
}

// BestRecord is the lowest-energy configuration seen during a run.
type BestRecord struct {
	VersionedRecord
	Step   int       `json:"step"`
	Energy float64   `json:"energy"`
	Params []float64 `json:"params"`
	Genes  []int     `json:"genes"`
}

func (b BestRecord) Clone() BestRecord {
	out := b
	out.Params = append([]float64(nil), b.Params...)
	out.Genes = append([]int(nil), b.Genes...)
	return out
}

// StepRecord is the per-step observable output of a search run.
type StepRecord struct {
	Step          int          `json:"step"`
	Energy        float64      `json:"energy"`
	Params        []float64    `json:"params"`
	Genes         []int        `json:"genes"`
	Mutation      MutationKind `json:"mutation"`
	Applied       bool         `json:"applied"`
	VibeMagnitude float64      `json:"vibe_magnitude"`
}

// DreamEvent is one entry of the append-only dream journal.
type DreamEvent struct {
	Generation int            `json:"generation"`
	Event      string         `json:"event"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RunState string

const (
	RunStateRunning             RunState = "running"
	RunStateStoppedByBudget     RunState = "stopped_by_budget"
	RunStateStoppedByStagnation RunState = "stopped_by_stagnation"
	RunStateAborted             RunState = "aborted"
	RunStateFailed              RunState = "failed"
)

// RunRecord is the persisted header of a search run.
type RunRecord struct {
	VersionedRecord
	ID           string   `json:"id"`
	Seed         int64    `json:"seed"`
	Evaluator    string   `json:"evaluator"`
	Intensity    float64  `json:"intensity"`
	MaxSteps     int      `json:"max_steps"`
	Patience     int      `json:"patience"`
	State        RunState `json:"state"`
	StepsRun     int      `json:"steps_run"`
	BestStep     int      `json:"best_step"`
	BestEnergy   float64  `json:"best_energy"`
	CreatedAtUTC string   `json:"created_at_utc"`
}
