package storage

import (
	"context"

	"qsoul/internal/model"
)

// Store persists search runs: the run header plus the per-run series the
// search loop produces. Getters report found=false for unknown runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveEnergyHistory(ctx context.Context, runID string, history []float64) error
	GetEnergyHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveVibeTrace(ctx context.Context, runID string, trace []float64) error
	GetVibeTrace(ctx context.Context, runID string) ([]float64, bool, error)
	SaveBest(ctx context.Context, runID string, best model.BestRecord) error
	GetBest(ctx context.Context, runID string) (model.BestRecord, bool, error)
	SaveSteps(ctx context.Context, runID string, steps []model.StepRecord) error
	GetSteps(ctx context.Context, runID string) ([]model.StepRecord, bool, error)
	SaveDreamLog(ctx context.Context, runID string, events []model.DreamEvent) error
	GetDreamLog(ctx context.Context, runID string) ([]model.DreamEvent, bool, error)
	DeleteRun(ctx context.Context, runID string) error
	Reset(ctx context.Context) error
}
