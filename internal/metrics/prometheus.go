// Package metrics provides Prometheus metrics for the team calendar service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes recorded by RecordSync.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Manager owns the service metrics. A nil *Manager is valid and records
// nothing, so callers need no guards.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	syncTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram
	syncLastUnix prometheus.Gauge

	eventsCurrent    *prometheus.GaugeVec
	eventsNormalized prometheus.Counter
	eventsDropped    prometheus.Counter
	sourceErrors     *prometheus.CounterVec
}

// NewManager creates a Manager on its own registry unless WithRegistry is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "teamcal",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   m.histogramBuckets,
	}, []string{"route"})

	m.syncTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_total",
		Help:      "Calendar syncs by outcome",
	}, []string{"outcome"})

	m.syncDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_duration_seconds",
		Help:      "Duration of a full calendar sync",
		Buckets:   m.histogramBuckets,
	})

	m.syncLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_last_success_unix",
		Help:      "Unix time of the last sync that produced a snapshot",
	})

	m.eventsCurrent = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events",
		Help:      "Source events in the current snapshot by kind",
	}, []string{"kind"})

	m.eventsNormalized = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_normalized_total",
		Help:      "Events normalized for display",
	})

	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dropped_total",
		Help:      "Source events dropped because they could not be normalized",
	})

	m.sourceErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "source_errors_total",
		Help:      "Failures of individual calendar sources during sync",
	}, []string{"source"})
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordSync records a finished sync.
func (m *Manager) RecordSync(outcome string, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(outcome).Inc()
	m.syncDuration.Observe(d.Seconds())
	if outcome != OutcomeFailed {
		m.syncLastUnix.Set(float64(finished.Unix()))
	}
}

// RecordSourceError counts a failing source ("ics", "oncall", "holiday").
func (m *Manager) RecordSourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

// SetEvents publishes the size of the current snapshot for one kind.
func (m *Manager) SetEvents(kind string, n int) {
	if m == nil {
		return
	}
	m.eventsCurrent.WithLabelValues(kind).Set(float64(n))
}

// RecordNormalized counts one normalization batch.
func (m *Manager) RecordNormalized(kept, dropped int) {
	if m == nil {
		return
	}
	m.eventsNormalized.Add(float64(kept))
	m.eventsDropped.Add(float64(dropped))
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
