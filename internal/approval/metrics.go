package approval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks reviewer decisions and queue health.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	Resolution     prometheus.Histogram
	Expired        prometheus.Counter
	DecisionErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_approval_decisions_total",
			Help: "Total reviewer decisions by decision kind",
		}, []string{"decision"}), // chain_approved, action_approved, action_modified, action_rejected, chain_rejected

		Resolution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealflow_approval_resolution_seconds",
			Help:    "Time from chain creation to its approval",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600},
		}),

		Expired: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_approval_chains_expired_total",
			Help: "Total pending chains expired by the sweeper",
		}),

		DecisionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_approval_decision_errors_total",
			Help: "Total decisions aborted, by decision kind",
		}, []string{"decision"}),
	}
}

func (m *Metrics) IncDecision(decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) IncDecisionError(decision string) {
	if m != nil {
		m.DecisionErrors.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) ObserveResolution(d time.Duration) {
	if m != nil {
		m.Resolution.Observe(d.Seconds())
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil {
		m.Expired.Add(float64(n))
	}
}
