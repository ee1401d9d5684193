// Package metrics exposes optional Prometheus counters for the block
// cache. The registry is nil-safe throughout: a freestanding boot can
// skip registration entirely and every counter method becomes a no-op,
// while the hosted harness (cmd/kernelctl) registers it and can dump it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts block cache hits, misses, evictions and flushes
// for one cache manager instance (the kernel core runs two: "info" and
// "data").
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Flushes   prometheus.Counter
}

// NewCacheMetrics builds and registers a CacheMetrics under reg, labeled
// by name ("info" or "data"). reg may be nil, in which case the returned
// metrics are created but never registered anywhere -- still safe to
// call Inc on, just invisible to any scrape.
func NewCacheMetrics(reg *prometheus.Registry, name string) *CacheMetrics {
	mk := func(metric string, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "kernel",
			Subsystem:   "blkcache",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}
	return &CacheMetrics{
		Hits:      mk("hits_total", "cache lookups that found a cached entry"),
		Misses:    mk("misses_total", "cache lookups that required a device read"),
		Evictions: mk("evictions_total", "entries evicted to make room"),
		Flushes:   mk("flushes_total", "dirty entries written back"),
	}
}

// incIfSet increments c, tolerating a nil *CacheMetrics receiver chain
// (the caller passes m.Hits etc. only after checking m != nil).
func incIfSet(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Inc helpers keep call sites in blkcache terse and nil-safe.
func (m *CacheMetrics) IncHit()      { if m != nil { incIfSet(m.Hits) } }
func (m *CacheMetrics) IncMiss()     { if m != nil { incIfSet(m.Misses) } }
func (m *CacheMetrics) IncEvict()    { if m != nil { incIfSet(m.Evictions) } }
func (m *CacheMetrics) IncFlush()    { if m != nil { incIfSet(m.Flushes) } }
