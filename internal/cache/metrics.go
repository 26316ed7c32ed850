// internal/cache/metrics.go
package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports cache counters to Prometheus. A nil *Metrics is valid and records nothing.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	entries       prometheus.Gauge
	persistErrors prometheus.Counter
	hydrated      prometheus.Counter
	skipped       *prometheus.CounterVec
}

// NewMetrics creates the cache metrics and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_cache_hits_total",
			Help: "Total number of span cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_cache_misses_total",
			Help: "Total number of span cache misses",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_cache_evictions_total",
			Help: "Entries evicted to stay within the entry limit",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spancache_cache_entries",
			Help: "Live entries in the span cache",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_cache_persist_errors_total",
			Help: "Failed writes of the cache snapshot to durable storage",
		}),
		hydrated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_cache_hydrated_entries_total",
			Help: "Entries recovered from durable storage",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spancache_cache_hydration_skipped_total",
			Help: "Persisted entries discarded during hydration",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.entries, m.persistErrors, m.hydrated, m.skipped)
	}
	return m
}

func (m *Metrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) recordEvictions(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

func (m *Metrics) setEntries(n int) {
	if m != nil {
		m.entries.Set(float64(n))
	}
}

func (m *Metrics) recordPersistError() {
	if m != nil {
		m.persistErrors.Inc()
	}
}

func (m *Metrics) recordHydrated(n int) {
	if m != nil && n > 0 {
		m.hydrated.Add(float64(n))
	}
}

func (m *Metrics) recordSkipped(reason string, n int) {
	if m != nil && n > 0 {
		m.skipped.WithLabelValues(reason).Add(float64(n))
	}
}
