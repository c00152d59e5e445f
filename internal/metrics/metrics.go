// Package metrics holds the Prometheus collectors shared by the chat
// services. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wellnest"

// Metrics groups the collectors.
type Metrics struct {
	Deliveries      prometheus.Counter
	Retries         prometheus.Counter
	TerminalErrors  prometheus.Counter
	Reconnects      prometheus.Counter
	ActiveListeners prometheus.Gauge
	HealthChecks    *prometheus.CounterVec

	MessagesSent    prometheus.Counter
	DecryptFailures prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "deliveries_total",
			Help:      "Snapshots delivered to listeners.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "retries_total",
			Help:      "Resubscribe attempts scheduled after a listener error.",
		}),
		TerminalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "terminal_errors_total",
			Help:      "Listener errors reported to callers after retries ran out.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "forced_reconnects_total",
			Help:      "Forced reconnects of every listener.",
		}),
		ActiveListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "active_listeners",
			Help:      "Listeners currently attached.",
		}),
		HealthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "health_checks_total",
			Help:      "Health checks by result.",
		}, []string{"result"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Messages written.",
		}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "decrypt_failures_total",
			Help:      "Messages rendered as undecryptable.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Deliveries, m.Retries, m.TerminalErrors, m.Reconnects,
			m.ActiveListeners, m.HealthChecks, m.MessagesSent, m.DecryptFailures,
		)
	}
	return m
}

func (m *Metrics) Delivered() {
	if m != nil {
		m.Deliveries.Inc()
	}
}

func (m *Metrics) Retried() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) Failed() {
	if m != nil {
		m.TerminalErrors.Inc()
	}
}

func (m *Metrics) Reconnected() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) SetListeners(n int) {
	if m != nil {
		m.ActiveListeners.Set(float64(n))
	}
}

func (m *Metrics) HealthChecked(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Sent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) DecryptFailed() {
	if m != nil {
		m.DecryptFailures.Inc()
	}
}
