// Package diagnostics provides Prometheus self-metrics for the bridge.
package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "telemetrybridge"

	// DirectionInbound labels scopes opened for incoming requests.
	DirectionInbound = "inbound"
	// DirectionOutbound labels scopes opened for outgoing requests.
	DirectionOutbound = "outbound"
)

// Metrics counts what the bridge itself does. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// MirroredEvents counts log entries copied onto spans.
	// Labels: severity
	MirroredEvents *prometheus.CounterVec

	// MirrorFailures counts mirror attempts that failed and were swallowed.
	MirrorFailures prometheus.Counter

	// ScopesOpened counts trace scopes pushed around requests.
	// Labels: direction (inbound, outbound)
	ScopesOpened *prometheus.CounterVec
}

// New registers the bridge metrics on reg. A nil reg gets a private
// registry, reachable through Registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		m.registry = prometheus.NewRegistry()
		reg = m.registry
	}
	factory := promauto.With(reg)

	m.MirroredEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "events_total",
			Help:      "Total number of log entries mirrored onto the active span",
		},
		[]string{"severity"},
	)
	m.MirrorFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "failures_total",
			Help:      "Total number of mirror attempts that failed",
		},
	)
	m.ScopesOpened = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scope",
			Name:      "opened_total",
			Help:      "Total number of trace scopes opened around requests",
		},
		[]string{"direction"},
	)
	return m
}

// Registry returns the private registry, or nil when New was given one.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EventMirrored records one mirrored log entry.
func (m *Metrics) EventMirrored(severity string) {
	if m == nil {
		return
	}
	m.MirroredEvents.WithLabelValues(severity).Inc()
}

// MirrorFailed records one swallowed mirror failure.
func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.MirrorFailures.Inc()
}

// ScopeOpened records one trace scope opened in direction.
func (m *Metrics) ScopeOpened(direction string) {
	if m == nil {
		return
	}
	m.ScopesOpened.WithLabelValues(direction).Inc()
}
