package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the emit pipeline.
type Metrics struct {
	// Emit outcomes: "accepted", "degraded", "rejected"
	Emits *prometheus.CounterVec

	// Chains created by approval tier
	ChainsCreated *prometheus.CounterVec

	// Secondary failures by stage
	Diagnostics *prometheus.CounterVec

	// Tier-1 chains approved without a human
	AutoApproved prometheus.Counter

	// Chains escalated by a constitution breach
	ConstitutionalEscalations prometheus.Counter

	// Whole emit pass latency
	EmitLatency prometheus.Histogram
}

// New registers orchestrator metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_orchestrator_emits_total",
			Help: "Total emit calls by outcome",
		}, []string{"outcome"}),

		ChainsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_orchestrator_chains_created_total",
			Help: "Total action chains created by approval tier",
		}, []string{"tier"}),

		Diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_orchestrator_diagnostics_total",
			Help: "Total secondary failures recorded during emit, by stage",
		}, []string{"stage"}),

		AutoApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_orchestrator_auto_approved_total",
			Help: "Total tier-1 chains auto-approved",
		}),

		ConstitutionalEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_orchestrator_constitutional_escalations_total",
			Help: "Total chains escalated to tier 3 by a constitution breach",
		}),

		EmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealflow_orchestrator_emit_duration_seconds",
			Help:    "Duration of a full emit pass",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncEmit(outcome string) {
	if m != nil {
		m.Emits.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncChainCreated(tier int) {
	if m != nil {
		m.ChainsCreated.WithLabelValues(tierLabel(tier)).Inc()
	}
}

func (m *Metrics) IncDiagnostic(stage string) {
	if m != nil {
		m.Diagnostics.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) IncAutoApproved() {
	if m != nil {
		m.AutoApproved.Inc()
	}
}

func (m *Metrics) IncConstitutionalEscalation() {
	if m != nil {
		m.ConstitutionalEscalations.Inc()
	}
}

func (m *Metrics) ObserveEmitLatency(d time.Duration) {
	if m != nil {
		m.EmitLatency.Observe(d.Seconds())
	}
}

func tierLabel(tier int) string {
	switch tier {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "unknown"
	}
}
