// Package metrics exposes Prometheus instrumentation for the dialog engine
// and chat channels. All methods are safe on a nil *Metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the carbot collectors.
type Metrics struct {
	inbound     *prometheus.CounterVec
	outbound    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	invalid     *prometheus.CounterVec
	external    *prometheus.CounterVec
	completed   *prometheus.CounterVec
	receipts    *prometheus.CounterVec
	reaped      prometheus.Counter
	sessions    prometheus.Gauge
	handleTime  prometheus.Histogram
}

// New registers the collectors on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "messages", Name: "inbound_total",
			Help: "Inbound customer messages by kind",
		}, []string{"kind"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "messages", Name: "outbound_total",
			Help: "Outbound messages by kind and status",
		}, []string{"kind", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "dialog", Name: "transitions_total",
			Help: "Dialog step transitions",
		}, []string{"from", "to"}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "dialog", Name: "validation_failures_total",
			Help: "Answers rejected by a step validator",
		}, []string{"step"}),
		external: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "dialog", Name: "external_failures_total",
			Help: "Failed calls to external dependencies",
		}, []string{"dependency"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "dialog", Name: "funnels_total",
			Help: "Funnels finished by intent and outcome",
		}, []string{"intent", "outcome"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "messages", Name: "receipts_total",
			Help: "Delivery receipts reported by the chat channel",
		}, []string{"status"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carbot", Subsystem: "sessions", Name: "reaped_total",
			Help: "Sessions evicted by the idle reaper",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "carbot", Subsystem: "sessions", Name: "active",
			Help: "Sessions currently held in memory",
		}),
		handleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carbot", Subsystem: "dialog", Name: "handle_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inbound, m.outbound, m.transitions, m.invalid, m.external,
		m.completed, m.receipts, m.reaped, m.sessions, m.handleTime)
	return m
}

func (m *Metrics) ObserveInbound(kind string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.outbound.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveInvalid(step string) {
	if m == nil {
		return
	}
	m.invalid.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveExternalFailure(dependency string) {
	if m == nil {
		return
	}
	m.external.WithLabelValues(dependency).Inc()
}

func (m *Metrics) ObserveFunnel(intent, outcome string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(intent, outcome).Inc()
}

func (m *Metrics) ObserveReceipt(status string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) ObserveHandle(seconds float64) {
	if m == nil {
		return
	}
	m.handleTime.Observe(seconds)
}
