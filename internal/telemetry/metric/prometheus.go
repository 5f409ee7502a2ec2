// Package metric provides Prometheus metrics for the autosave service.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autosave"

// Tick outcomes recorded by TicksTotal.
const (
	TickStored    = "stored"
	TickUnchanged = "unchanged"
	TickPending   = "pending"
	TickInvalid   = "invalid"
	TickError     = "error"
)

// Notification results recorded by NotificationsTotal.
const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifyDropped = "dropped"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Engine metrics
	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	SnapshotsPurged  *prometheus.CounterVec
	RestoresTotal    *prometheus.CounterVec
	PendingCacheHits *prometheus.CounterVec

	// Notifier metrics
	NotificationsTotal *prometheus.CounterVec
	NotifyQueueDepth   prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with Go runtime and process collectors
// and all autosave metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Autosave ticks processed, by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Time spent processing one autosave tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		SnapshotsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "snapshots_purged_total",
			Help:      "Snapshots removed by purge operations, by reason.",
		}, []string{"reason"}),
		RestoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "restores_total",
			Help:      "Restore requests, by result.",
		}, []string{"result"}),
		PendingCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "baseline_source_total",
			Help:      "Where the comparison baseline of a tick came from.",
		}, []string{"source"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Preview notifications, by result.",
		}, []string{"result"}),
		NotifyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "queue_depth",
			Help:      "Notifications waiting to be delivered.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.TicksTotal,
		r.TickDuration,
		r.SnapshotsPurged,
		r.RestoresTotal,
		r.PendingCacheHits,
		r.NotificationsTotal,
		r.NotifyQueueDepth,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

// Prometheus returns the underlying registry so other components (the
// badger engine, custom collectors) can register their own metrics.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns the /metrics handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}
