package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// taskMetrics is nil-safe so runners without a registerer skip metrics.
type taskMetrics struct {
	tasks    *prometheus.CounterVec
	rounds   prometheus.Histogram
	cost     prometheus.Histogram
	duration prometheus.Histogram
}

func newTaskMetrics(reg prometheus.Registerer) *taskMetrics {
	f := promauto.With(reg)
	return &taskMetrics{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_tasks_total",
			Help: "Tasks run, by final loop state (FAILED_SETUP when the loop never ran).",
		}, []string{"state"}),
		rounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "triad_task_rounds",
			Help:    "Coder/tester rounds per task.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		cost: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "triad_task_cost_usd",
			Help:    "LLM cost per task in USD.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "triad_task_duration_seconds",
			Help:    "Wall time per task.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
}

func (m *taskMetrics) observe(r *Report) {
	if m == nil {
		return
	}
	state := string(r.State)
	if state == "" {
		state = "FAILED_SETUP"
	}
	m.tasks.WithLabelValues(state).Inc()
	if r.State != "" {
		m.rounds.Observe(float64(r.Rounds))
		m.cost.Observe(r.Usage.CostUSD)
	}
	m.duration.Observe(r.Duration.Seconds())
}
