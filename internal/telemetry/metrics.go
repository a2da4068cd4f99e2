// Package telemetry exports search runs as Prometheus metrics and OTLP traces.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"qsoul/internal/evo"
	"qsoul/internal/model"
)

const namespace = "qsoul"

// Metrics is a search observer that records per-step and per-run metrics.
type Metrics struct {
	steps      *prometheus.CounterVec
	runs       *prometheus.CounterVec
	energy     prometheus.Gauge
	bestEnergy prometheus.Gauge
	vibe       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Search steps by drawn mutation kind and whether its gate passed.",
		}, []string{"mutation", "applied"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished search runs by final state.",
		}, []string{"state"}),
		energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy",
			Help:      "Energy of the most recent step.",
		}),
		bestEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_energy",
			Help:      "Best energy of the most recently finished run.",
		}),
		vibe: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vibe_magnitude",
			Help:      "Modulator magnitude after each energy feedback.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 10, 11),
		}),
	}
	for _, c := range []prometheus.Collector{m.steps, m.runs, m.energy, m.bestEnergy, m.vibe} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) OnStep(record model.StepRecord) {
	m.steps.WithLabelValues(record.Mutation.String(), strconv.FormatBool(record.Applied)).Inc()
	m.energy.Set(record.Energy)
	m.vibe.Observe(record.VibeMagnitude)
}

func (m *Metrics) OnHalt(result evo.RunResult) {
	m.runs.WithLabelValues(string(result.State)).Inc()
	if result.Best.Step >= 0 {
		m.bestEnergy.Set(result.Best.Energy)
	}
}

var _ evo.Observer = (*Metrics)(nil)
