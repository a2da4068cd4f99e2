package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes an energy history. Improvement is first minus best, so a
// run that lowered its energy reports a positive value.
type Summary struct {
	Steps       int     `json:"steps"`
	Initial     float64 `json:"initial"`
	Final       float64 `json:"final"`
	Best        float64 `json:"best"`
	Worst       float64 `json:"worst"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Improvement float64 `json:"improvement"`
}

func Summarize(history []float64) Summary {
	if len(history) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(history, nil)
	best := floats.Min(history)
	return Summary{
		Steps:       len(history),
		Initial:     history[0],
		Final:       history[len(history)-1],
		Best:        best,
		Worst:       floats.Max(history),
		Mean:        mean,
		Std:         std,
		Improvement: history[0] - best,
	}
}
