package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DBMetrics holds metrics recorded by the PostgreSQL query tracer.
type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
	Errors        *prometheus.CounterVec
}

func NewDBMetrics(reg prometheus.Registerer) *DBMetrics {
	m := &DBMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds, by statement type.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total number of failed database queries, by statement type.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.QueryDuration, m.Errors)
	return m
}

func (m *DBMetrics) ObserveQuery(operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation).Observe(took.Seconds())
	if err != nil {
		m.Errors.WithLabelValues(operation).Inc()
	}
}
