package mcbench

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for run counters.
const (
	OutcomeConverged = "converged"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeInvalid   = "invalid"
)

// Metrics exposes refinement and harness activity as Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rounds         prometheus.Counter
	evaluations    prometheus.Counter
	runs           *prometheus.CounterVec
	roundDuration  prometheus.Histogram
	evaluationTime *prometheus.HistogramVec
}

// NewMetrics registers the mcbench collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mcbench",
			Name:      "refinement_rounds_total",
			Help:      "Refinement rounds executed by the adaptive controller.",
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mcbench",
			Name:      "integrand_evaluations_total",
			Help:      "Integrand evaluations requested from the stochastic integrator.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcbench",
			Name:      "refinement_runs_total",
			Help:      "Refinement runs by outcome.",
		}, []string{"outcome"}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mcbench",
			Name:      "refinement_round_seconds",
			Help:      "Wall-clock duration of a single refinement round.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		evaluationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcbench",
			Name:      "evaluation_seconds",
			Help:      "Wall-clock duration of a harness evaluation path.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method", "outcome"}),
	}
}

func (m *Metrics) observeRound(evaluations int64, d time.Duration) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.evaluations.Add(float64(evaluations))
	m.roundDuration.Observe(d.Seconds())
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeEvaluation(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationTime.WithLabelValues(method, outcome).Observe(d.Seconds())
}
