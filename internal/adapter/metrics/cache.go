package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks which freshness tier served each neighborhood lookup.
type CacheMetrics struct {
	Lookups       *prometheus.CounterVec
	StaleEnqueues *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of neighborhood lookups, by served tier.",
		}, []string{"tier"}),
		StaleEnqueues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stale_enqueues_total",
			Help:      "Background refresh requests raised by stale reads, by outcome.",
		}, []string{"outcome"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "store_errors_total",
			Help:      "Store failures absorbed by the cache, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Lookups, m.StaleEnqueues, m.StoreErrors)
	return m
}

func (m *CacheMetrics) Lookup(tier string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(tier).Inc()
}

func (m *CacheMetrics) StaleEnqueue(outcome string) {
	if m == nil {
		return
	}
	m.StaleEnqueues.WithLabelValues(outcome).Inc()
}

func (m *CacheMetrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}
