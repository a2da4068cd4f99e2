package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsoul/internal/evo"
	"qsoul/internal/model"
)

func TestMetricsObserveSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.OnStep(model.StepRecord{Step: 0, Energy: 0.5, Mutation: model.MutationSwap, Applied: true, VibeMagnitude: 0.3})
	m.OnStep(model.StepRecord{Step: 1, Energy: 0.4, Mutation: model.MutationSwap, Applied: true, VibeMagnitude: 0.2})
	m.OnStep(model.StepRecord{Step: 2, Energy: 0.45, Mutation: model.MutationNone, VibeMagnitude: 0.1})
	m.OnHalt(evo.RunResult{State: model.RunStateStoppedByBudget, Best: model.BestRecord{Step: 1, Energy: 0.4}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("swap", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("none", "false")))
	assert.Equal(t, 0.45, testutil.ToFloat64(m.energy))
	assert.Equal(t, 0.4, testutil.ToFloat64(m.bestEnergy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stopped_by_budget")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.vibe))
}

func TestMetricsSkipBestWhenNoStepRan(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.OnHalt(evo.RunResult{State: model.RunStateAborted, Best: model.BestRecord{Step: -1}})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.bestEnergy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("aborted")))
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	require.Error(t, err)
}
