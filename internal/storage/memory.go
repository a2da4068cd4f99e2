package storage

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"qsoul/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]float64
	vibeTraces  map[string][]float64
	best        map[string]model.BestRecord
	steps       map[string][]model.StepRecord
	dreamLogs   map[string][]model.DreamEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.initialized = true
	return nil
}

func (s *MemoryStore) reset() {
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.vibeTraces = make(map[string][]float64)
	s.best = make(map[string]model.BestRecord)
	s.steps = make(map[string][]model.StepRecord)
	s.dreamLogs = make(map[string][]model.DreamEvent)
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns runs newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *MemoryStore) SaveEnergyHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetEnergyHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveVibeTrace(_ context.Context, runID string, trace []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.vibeTraces[runID] = append([]float64(nil), trace...)
	return nil
}

func (s *MemoryStore) GetVibeTrace(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace, ok := s.vibeTraces[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), trace...), true, nil
}

func (s *MemoryStore) SaveBest(_ context.Context, runID string, best model.BestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.best[runID] = best.Clone()
	return nil
}

func (s *MemoryStore) GetBest(_ context.Context, runID string) (model.BestRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best, ok := s.best[runID]
	if !ok {
		return model.BestRecord{}, false, nil
	}
	return best.Clone(), true, nil
}

func (s *MemoryStore) SaveSteps(_ context.Context, runID string, steps []model.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.steps[runID] = copySteps(steps)
	return nil
}

func (s *MemoryStore) GetSteps(_ context.Context, runID string) ([]model.StepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, ok := s.steps[runID]
	if !ok {
		return nil, false, nil
	}
	return copySteps(steps), true, nil
}

func (s *MemoryStore) SaveDreamLog(_ context.Context, runID string, events []model.DreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.dreamLogs[runID] = copyDreamLog(events)
	return nil
}

func (s *MemoryStore) GetDreamLog(_ context.Context, runID string) ([]model.DreamEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.dreamLogs[runID]
	if !ok {
		return nil, false, nil
	}
	return copyDreamLog(events), true, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	delete(s.history, runID)
	delete(s.vibeTraces, runID)
	delete(s.best, runID)
	delete(s.steps, runID)
	delete(s.dreamLogs, runID)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

func copySteps(steps []model.StepRecord) []model.StepRecord {
	copied := make([]model.StepRecord, len(steps))
	for i, step := range steps {
		step.Params = append([]float64(nil), step.Params...)
		step.Genes = append([]int(nil), step.Genes...)
		copied[i] = step
	}
	return copied
}

func copyDreamLog(events []model.DreamEvent) []model.DreamEvent {
	copied := make([]model.DreamEvent, len(events))
	for i, event := range events {
		if event.Metadata != nil {
			event.Metadata = maps.Clone(event.Metadata)
		}
		copied[i] = event
	}
	return copied
}

func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if c := model.CompareTimestamps(runs[i].CreatedAtUTC, runs[j].CreatedAtUTC); c != 0 {
			return c > 0
		}
		return runs[i].ID < runs[j].ID
	})
}
