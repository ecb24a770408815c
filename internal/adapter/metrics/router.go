package metrics

import "github.com/prometheus/client_golang/prometheus"

// RouterMetrics holds metrics for source selection and crawler outcomes.
type RouterMetrics struct {
	Picks        *prometheus.CounterVec
	Results      *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewRouterMetrics creates and registers router metrics on the given registry.
func NewRouterMetrics(reg prometheus.Registerer) *RouterMetrics {
	m := &RouterMetrics{
		Picks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "picks_total",
			Help:      "Total number of source selections, by region and source.",
		}, []string{"region", "source"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "results_total",
			Help:      "Reported crawl outcomes, by source and result.",
		}, []string{"source", "result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "circuit_breaker_state",
			Help:      "Per-source circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"source"}),
	}

	reg.MustRegister(m.Picks, m.Results, m.BreakerState)
	return m
}

func (m *RouterMetrics) Pick(region, source string) {
	if m == nil {
		return
	}
	m.Picks.WithLabelValues(region, source).Inc()
}

func (m *RouterMetrics) Result(source string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.Results.WithLabelValues(source, result).Inc()
}

func (m *RouterMetrics) SetBreakerState(source string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(source).Set(state)
}
