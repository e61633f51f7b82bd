package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metrics are registered on a per-server registry so several servers
// (e.g. in tests) don't collide on the global one.
type metrics struct {
	registry *prometheus.Registry

	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	evaluations  prometheus.Counter
	jobDuration  prometheus.Histogram
	bestFitness  *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batopt_jobs_started_total",
			Help: "Optimization jobs accepted by the server.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batopt_jobs_finished_total",
			Help: "Optimization jobs that reached a terminal state.",
		}, []string{"state"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batopt_jobs_running",
			Help: "Optimization jobs currently running.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batopt_objective_evaluations_total",
			Help: "Objective evaluations performed by finished jobs.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batopt_job_duration_seconds",
			Help:    "Wall time of finished jobs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batopt_last_best_fitness",
			Help: "Best fitness of the most recent completed job per objective.",
		}, []string{"objective"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsStarted,
		m.jobsFinished,
		m.jobsRunning,
		m.evaluations,
		m.jobDuration,
		m.bestFitness,
	)
	return m
}

func (m *metrics) finished(state JobState, evaluations int, seconds float64) {
	m.jobsFinished.WithLabelValues(string(state)).Inc()
	m.evaluations.Add(float64(evaluations))
	m.jobDuration.Observe(seconds)
}

// watchBroadcaster exports the broadcaster's drop count.
func (m *metrics) watchBroadcaster(eb *EventBroadcaster) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "batopt_stream_events_dropped_total",
		Help: "Progress events skipped because a stream subscriber was too slow.",
	}, func() float64 { return float64(eb.Dropped()) }))
}
