package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/inplace/pkg/domain"
)

// Metrics records lifecycle events as Prometheus series.
type Metrics struct {
	transitions *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	cycles      prometheus.Counter
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inplace_transitions_total",
				Help: "Committed bundle transitions",
			},
			[]string{"transition", "to"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inplace_rollbacks_total",
				Help: "Bundle transitions rolled back after a framework failure",
			},
			[]string{"transition"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inplace_transition_duration_seconds",
				Help:    "Duration of the framework call of a transition",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"transition"},
		),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inplace_cycles_total",
			Help: "Circular references found while ordering a job",
		}),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inplace_jobs_total",
				Help: "Finished lifecycle jobs by outcome",
			},
			[]string{"job", "code"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "inplace_job_duration_seconds",
				Help: "Duration of lifecycle jobs",
			},
			[]string{"job"},
		),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.rollbacks, m.duration, m.cycles, m.jobs, m.jobDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns the lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransitionCommit: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(e.Transition.String(), e.To.String()).Inc()
			m.duration.WithLabelValues(e.Transition.String()).Observe(e.Duration.Seconds())
		},
		OnTransitionRollback: func(_ context.Context, e *domain.TransitionEvent) {
			m.rollbacks.WithLabelValues(e.Transition.String()).Inc()
		},
		OnCycle: func(_ context.Context, _ *domain.CycleEvent) {
			m.cycles.Inc()
		},
		OnJobDone: func(_ context.Context, e *domain.JobEvent) {
			m.jobs.WithLabelValues(e.Job, e.Code.String()).Inc()
			m.jobDuration.WithLabelValues(e.Job).Observe(e.Duration.Seconds())
		},
	}
}
