// Package metrics owns the Prometheus collectors for Tagwatch Core.
//
// A nil *Metrics is valid and records nothing, so components can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagwatch"

// Session open outcomes used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoTags  = "no_tags"
)

// Metrics groups every collector exported by the process.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive      prometheus.Gauge
	SessionOpens        *prometheus.CounterVec
	SamplesReceived     *prometheus.CounterVec
	AlarmsFired         *prometheus.CounterVec
	RuleErrors          prometheus.Counter
	EventsDropped       *prometheus.CounterVec
	SubscriptionsActive prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live endpoint sessions",
		}),
		SessionOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open_total",
			Help:      "Session open attempts by outcome (success, failure, no_tags)",
		}, []string{"result"}),
		SamplesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "received_total",
			Help:      "Data change notifications received per connection",
		}, []string{"connection"}),
		AlarmsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarms",
			Name:      "fired_total",
			Help:      "Alarms produced by rule evaluation, by severity",
		}, []string{"severity"}),
		RuleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "errors_total",
			Help:      "Rules skipped during evaluation because they were malformed",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped by a sink because its queue was full",
		}, []string{"sink"}),
		SubscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_items_active",
			Help:      "Number of monitored items across all live sessions",
		}),
	}

	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionOpens,
		m.SamplesReceived,
		m.AlarmsFired,
		m.RuleErrors,
		m.EventsDropped,
		m.SubscriptionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionOpened records the outcome of one createConnection.
func (m *Metrics) SessionOpened(result string) {
	if m == nil {
		return
	}
	m.SessionOpens.WithLabelValues(result).Inc()
}

// SessionStarted adjusts the live gauges after a session registers.
func (m *Metrics) SessionStarted(items int) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SubscriptionsActive.Add(float64(items))
}

// SessionStopped adjusts the live gauges after a session is removed.
func (m *Metrics) SessionStopped(items int) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SubscriptionsActive.Sub(float64(items))
}

// SampleReceived counts one notification for connection id.
func (m *Metrics) SampleReceived(connectionID int64) {
	if m == nil {
		return
	}
	m.SamplesReceived.WithLabelValues(strconv.FormatInt(connectionID, 10)).Inc()
}

// AlarmFired counts one alarm.
func (m *Metrics) AlarmFired(severity string) {
	if m == nil {
		return
	}
	m.AlarmsFired.WithLabelValues(severity).Inc()
}

// RuleSkipped counts one malformed rule.
func (m *Metrics) RuleSkipped() {
	if m == nil {
		return
	}
	m.RuleErrors.Inc()
}

// EventDropped counts one event a sink could not queue.
func (m *Metrics) EventDropped(sink string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(sink).Inc()
}
