package evo

import "qsoul/internal/model"

// Observer receives the per-step and end-of-run outputs of a search run.
// Observers run on the search goroutine and must not block.
type Observer interface {
	OnStep(record model.StepRecord)
	OnHalt(result RunResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step func(record model.StepRecord)
	Halt func(result RunResult)
}

func (o ObserverFuncs) OnStep(record model.StepRecord) {
	if o.Step != nil {
		o.Step(record)
	}
}

func (o ObserverFuncs) OnHalt(result RunResult) {
	if o.Halt != nil {
		o.Halt(result)
	}
}

type observers []Observer

func (obs observers) step(record model.StepRecord) {
	for _, o := range obs {
		o.OnStep(record)
	}
}

func (obs observers) halt(result RunResult) {
	for _, o := range obs {
		o.OnHalt(result)
	}
}
