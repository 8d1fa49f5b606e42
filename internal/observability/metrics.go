package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for veritas on a custom registry.
// Every method is safe on a nil receiver so components can run without it.
type Metrics struct {
	Registry *prometheus.Registry

	AdmissionDecisions  *prometheus.CounterVec
	InflightRequests    prometheus.Gauge
	AgentInvocations    *prometheus.CounterVec
	AgentDuration       *prometheus.HistogramVec
	Replans             prometheus.Counter
	TraceDecodeFailures prometheus.Counter
	Requests            *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		AdmissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"outcome"}),

		InflightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veritas",
			Name:      "inflight_requests",
			Help:      "Requests currently holding an admission slot.",
		}),

		AgentInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "agent_invocations_total",
			Help:      "Planner and agent invocations by status.",
		}, []string{"agent", "status"}),

		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "veritas",
			Name:      "agent_duration_seconds",
			Help:      "Planner and agent invocation duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent"}),

		Replans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "replans_total",
			Help:      "Re-planning transitions taken.",
		}),

		TraceDecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "trace_decode_failures_total",
			Help:      "Execution trace fragments dropped as malformed.",
		}),

		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "requests_total",
			Help:      "Answered requests by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.AdmissionDecisions,
		m.InflightRequests,
		m.AgentInvocations,
		m.AgentDuration,
		m.Replans,
		m.TraceDecodeFailures,
		m.Requests,
	)
	return m
}

func (m *Metrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.AdmissionDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncInflight() {
	if m == nil {
		return
	}
	m.InflightRequests.Inc()
}

func (m *Metrics) DecInflight() {
	if m == nil {
		return
	}
	m.InflightRequests.Dec()
}

func (m *Metrics) RecordAgent(agent, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.AgentInvocations.WithLabelValues(agent, status).Inc()
	m.AgentDuration.WithLabelValues(agent).Observe(took.Seconds())
}

func (m *Metrics) RecordReplan() {
	if m == nil {
		return
	}
	m.Replans.Inc()
}

func (m *Metrics) RecordTraceDecodeFailure() {
	if m == nil {
		return
	}
	m.TraceDecodeFailures.Inc()
}

func (m *Metrics) RecordRequest(status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(status).Inc()
}
