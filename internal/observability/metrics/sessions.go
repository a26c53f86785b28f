package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	obserrors "github.com/target/mmk-sessions/internal/observability/errors"
	"github.com/target/mmk-sessions/internal/observability/statsd"
)

const defaultNamespace = "mmk"

// SessionMetricsOptions groups dependencies for SessionMetrics.
type SessionMetricsOptions struct {
	Sink       statsd.Sink           // Optional: StatsD-compatible sink
	Registerer prometheus.Registerer // Optional: defaults to a private registry
	Namespace  string                // Optional: metric name prefix, defaults to "mmk"
}

// SessionMetrics turns registry events and connect failures into metrics.
// It implements ports.SessionListener.
type SessionMetrics struct {
	sink statsd.Sink

	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	active   prometheus.Gauge
	lifetime *prometheus.HistogramVec
}

// NewSessionMetrics registers the session collectors and returns the recorder.
func NewSessionMetrics(opts SessionMetricsOptions) *SessionMetrics {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &SessionMetrics{
		sink: opts.Sink,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "events_total",
				Help:      "Session lifecycle events by type",
			},
			[]string{"event"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "connect_failures_total",
				Help:      "Rejected or failed connect requests by error code and reason",
			},
			[]string{"code", "reason"},
		),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently held by the registry",
		}),
		lifetime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "lifetime_seconds",
				Help:      "Time from connect to the end of a session",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
			},
			[]string{"event"},
		),
	}
}

// OnSessionEvent records one lifecycle transition.
func (m *SessionMetrics) OnSessionEvent(_ context.Context, evt domainauth.SessionEvent) error {
	event := string(evt.Type)
	m.events.WithLabelValues(event).Inc()

	tags := map[string]string{"event": event}
	if evt.Reason != "" {
		tags["reason"] = evt.Reason
	}
	m.count("session.event", tags)

	switch evt.Type {
	case domainauth.EventConnected:
		m.active.Inc()
	case domainauth.EventDisconnected, domainauth.EventExpired, domainauth.EventKilled:
		m.active.Dec()
		if !evt.Session.CreatedAt.IsZero() && evt.At.After(evt.Session.CreatedAt) {
			life := evt.At.Sub(evt.Session.CreatedAt)
			m.lifetime.WithLabelValues(event).Observe(life.Seconds())
			if m.sink != nil {
				m.sink.Timing("session.lifetime", life, CloneTags(tags))
			}
		}
	}
	return nil
}

// ConnectFailed records a connect request that did not produce a session.
func (m *SessionMetrics) ConnectFailed(_ string, err error) {
	if err == nil {
		return
	}
	labels := obserrors.Classify(err)
	m.failures.WithLabelValues(labels.Code, labels.Reason).Inc()

	tags := map[string]string{"code": labels.Code, "result": ResultError}
	if labels.Reason != "" {
		tags["reason"] = labels.Reason
	}
	m.count("session.connect_failure", tags)
}

// SetActive overwrites the active gauge, typically after a sweep.
func (m *SessionMetrics) SetActive(n int) {
	m.active.Set(float64(n))
	if m.sink != nil {
		m.sink.Gauge("sessions.active", float64(n), nil)
	}
}

func (m *SessionMetrics) count(name string, tags map[string]string) {
	if m.sink == nil {
		return
	}
	m.sink.Count(name, 1, tags)
}
