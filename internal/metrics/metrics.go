// Package metrics exports cache, lookup and quota activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "acessivel"

// Metrics implements cache.Observer, lookup.Observer and quota.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Hits            *prometheus.CounterVec
	Misses          *prometheus.CounterVec
	Evictions       *prometheus.CounterVec
	Expirations     *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec

	Lookups       *prometheus.CounterVec
	LookupLatency *prometheus.HistogramVec

	QuotaOps *prometheus.GaugeVec
}

// New creates every collector and registers it on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups that found a live entry",
		}, []string{"cache"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that found nothing",
		}, []string{"cache"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries dropped to stay within capacity",
		}, []string{"cache"}),
		Expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expired_total",
			Help:      "Expired entries purged",
		}, []string{"cache"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_persist_failures_total",
			Help:      "Durable writes that failed",
		}, []string{"cache"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "External lookups by service and outcome",
		}, []string{"service", "outcome"}),
		LookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "External lookup latency, including politeness waits",
			Buckets:   []float64{.005, .05, .25, .5, 1, 2, 5, 10},
		}, []string{"service"}),
		QuotaOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_operations",
			Help:      "Document store operations in the current quota window",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.Hits, m.Misses, m.Evictions, m.Expirations, m.PersistFailures,
		m.Lookups, m.LookupLatency, m.QuotaOps,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit(ns string)      { m.Hits.WithLabelValues(ns).Inc() }
func (m *Metrics) CacheMiss(ns string)     { m.Misses.WithLabelValues(ns).Inc() }
func (m *Metrics) CacheEviction(ns string) { m.Evictions.WithLabelValues(ns).Inc() }

func (m *Metrics) CacheExpired(ns string, n int) {
	m.Expirations.WithLabelValues(ns).Add(float64(n))
}

func (m *Metrics) CachePersistFailure(ns string) {
	m.PersistFailures.WithLabelValues(ns).Inc()
}

func (m *Metrics) LookupRequest(service, outcome string, d time.Duration) {
	m.Lookups.WithLabelValues(service, outcome).Inc()
	m.LookupLatency.WithLabelValues(service).Observe(d.Seconds())
}

func (m *Metrics) QuotaUsage(reads, writes, deletes int64) {
	m.QuotaOps.WithLabelValues("read").Set(float64(reads))
	m.QuotaOps.WithLabelValues("write").Set(float64(writes))
	m.QuotaOps.WithLabelValues("delete").Set(float64(deletes))
}
