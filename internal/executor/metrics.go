package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dealflow/internal/models"
)

// Metrics provides observability for action execution.
type Metrics struct {
	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Panics     prometheus.Counter
}

// NewMetrics registers executor metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_executor_executions_total",
			Help: "Total action executions by action type and outcome",
		}, []string{"action_type", "outcome"}), // outcome: "success", "failure"

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealflow_executor_duration_seconds",
			Help:    "Duration of a single action execution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action_type"}),

		Panics: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_executor_panics_total",
			Help: "Total action handler panics recovered at the dispatch boundary",
		}),
	}
}

func (m *Metrics) ObserveExecution(t models.ActionType, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Executions.WithLabelValues(string(t), outcome).Inc()
	m.Duration.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) IncPanics() {
	if m != nil {
		m.Panics.Inc()
	}
}
