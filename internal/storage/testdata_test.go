package storage

import "qsoul/internal/model"

func sampleRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		Seed:            7,
		Evaluator:       "ansatz",
		Intensity:       0.707,
		MaxSteps:        50,
		Patience:        10,
		State:           model.RunStateStoppedByStagnation,
		StepsRun:        12,
		BestStep:        1,
		BestEnergy:      0.3,
		CreatedAtUTC:    created,
	}
}

func sampleBest() model.BestRecord {
	return model.BestRecord{
		VersionedRecord: Versioned(),
		Step:            1,
		Energy:          0.3,
		Params:          []float64{0.1, 0.2},
		Genes:           []int{1, 0},
	}
}

func sampleSteps() []model.StepRecord {
	return []model.StepRecord{
		{Step: 0, Energy: 0.5, Params: []float64{0.1, 0.2}, Genes: []int{0}, Mutation: model.MutationNone, VibeMagnitude: 0.4},
		{Step: 1, Energy: 0.3, Params: []float64{0.2, 0.2}, Genes: []int{1}, Mutation: model.MutationGeneFlip, Applied: true, VibeMagnitude: 0.2},
	}
}

func sampleDreamLog() []model.DreamEvent {
	return []model.DreamEvent{
		{Generation: 0, Event: "run_start", Metadata: map[string]any{"max_steps": 50.0}},
		{Generation: 1, Event: "halt", Metadata: map[string]any{"state": "stopped_by_budget"}},
	}
}
