package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RefreshMetrics holds metrics for the refresh pipeline and its background queue.
type RefreshMetrics struct {
	Refreshes    *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	PostsStored  prometheus.Counter
	QueueDepth   prometheus.Gauge
	QueueDropped prometheus.Counter
	BatchRuns    *prometheus.CounterVec
}

// NewRefreshMetrics creates and registers refresh metrics on the given registry.
func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	m := &RefreshMetrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "total",
			Help:      "Total number of refresh attempts, by trigger and result.",
		}, []string{"trigger", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of refreshes that ran the pipeline, in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"trigger"}),
		PostsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "posts_stored_total",
			Help:      "Total number of new posts persisted by refreshes.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh_queue",
			Name:      "depth",
			Help:      "Number of refresh jobs waiting for a worker.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh_queue",
			Name:      "dropped_total",
			Help:      "Refresh jobs dropped because the queue was full or stopped.",
		}),
		BatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh_batch",
			Name:      "runs_total",
			Help:      "Scheduled batch refresh runs, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Refreshes, m.Duration, m.PostsStored, m.QueueDepth, m.QueueDropped, m.BatchRuns)
	return m
}

func (m *RefreshMetrics) ObserveRefresh(trigger, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(trigger, result).Inc()
	if took > 0 {
		m.Duration.WithLabelValues(trigger).Observe(took.Seconds())
	}
}

func (m *RefreshMetrics) AddPosts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PostsStored.Add(float64(n))
}

func (m *RefreshMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *RefreshMetrics) Dropped() {
	if m == nil {
		return
	}
	m.QueueDropped.Inc()
}

func (m *RefreshMetrics) BatchRun(result string) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues(result).Inc()
}
