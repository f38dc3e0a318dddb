package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for ops audit tracking.
type Metrics struct {
	Tracked               *prometheus.CounterVec
	Sampled               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers ops audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Tracked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_audit_ops_tracked_total",
			Help: "Total number of operational audit events handed to the sink, by action",
		}, []string{"action"}),
		Sampled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_audit_ops_sampled_total",
			Help: "Total number of operational audit events dropped due to sampling",
		}),
		CircuitBreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_audit_ops_circuit_breaker_dropped_total",
			Help: "Total number of operational audit events dropped due to circuit breaker",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_audit_ops_persist_failures_total",
			Help: "Total number of operational audit events the sink rejected",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dealflow_audit_ops_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncTracked(action string) {
	if m != nil {
		m.Tracked.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncSampled() {
	if m != nil {
		m.Sampled.Inc()
	}
}

func (m *Metrics) IncCircuitBreakerDropped() {
	if m != nil {
		m.CircuitBreakerDropped.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
