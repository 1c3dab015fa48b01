package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks               *prometheus.CounterVec
	tickDuration        *prometheus.HistogramVec
	recordsEvaluated    *prometheus.CounterVec
	fetchErrors         *prometheus.CounterVec
	triggers            *prometheus.CounterVec
	removals            *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
	panics              *prometheus.CounterVec
	notificationsFailed prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	labels := []string{"loop"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Completed reconciliation ticks.",
		}, labels),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_tick_duration_seconds",
			Help:    "Wall time of one reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		}, labels),
		recordsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_records_evaluated_total",
			Help: "Records evaluated against market state.",
		}, labels),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_fetch_errors_total",
			Help: "Transient market data or ledger errors; the record is retried next tick.",
		}, labels),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_triggers_total",
			Help: "Records whose condition was met and committed.",
		}, labels),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_removals_total",
			Help: "Records garbage collected because their pair no longer exists.",
		}, labels),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_store_errors_total",
			Help: "Failed collection commits.",
		}, labels),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_panics_total",
			Help: "Panics recovered inside a tick.",
		}, labels),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_notifications_failed_total",
			Help: "Notifications that could not be delivered.",
		}),
	}
	m.registry.MustRegister(
		m.ticks, m.tickDuration, m.recordsEvaluated, m.fetchErrors,
		m.triggers, m.removals, m.storeErrors, m.panics, m.notificationsFailed,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTick(loop string, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(loop).Inc()
	m.tickDuration.WithLabelValues(loop).Observe(d.Seconds())
}

func (m *Metrics) AddEvaluated(loop string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsEvaluated.WithLabelValues(loop).Add(float64(n))
}

func (m *Metrics) IncFetchError(loop string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(loop).Inc()
}

func (m *Metrics) AddTriggered(loop string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.triggers.WithLabelValues(loop).Add(float64(n))
}

func (m *Metrics) AddRemoved(loop string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removals.WithLabelValues(loop).Add(float64(n))
}

func (m *Metrics) IncStoreError(loop string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(loop).Inc()
}

func (m *Metrics) IncPanic(loop string) {
	if m == nil {
		return
	}
	m.panics.WithLabelValues(loop).Inc()
}

func (m *Metrics) IncNotificationFailed() {
	if m == nil {
		return
	}
	m.notificationsFailed.Inc()
}
