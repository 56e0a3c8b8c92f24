package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	TasksExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskproc_tasks_executed_total",
			Help: "Total number of task instances executed (cache misses) by channel",
		},
		[]string{"channel"},
	)

	TasksCached = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskproc_tasks_cached_total",
			Help: "Total number of task instances served from cache",
		},
	)

	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskproc_tasks_failed_total",
			Help: "Total number of failed task instances by class",
		},
		[]string{"task_class"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskproc_task_duration_seconds",
			Help:    "Task body execution duration in seconds by class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_class"},
	)

	// Graph metrics
	GraphDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskproc_graph_duration_seconds",
			Help:    "End-to-end graph execution duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 1800}, // 100ms to 30min
		},
	)

	GraphNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskproc_graph_nodes",
			Help:    "Number of nodes in resolved graphs",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksExecuted)
	prometheus.MustRegister(TasksCached)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(GraphDuration)
	prometheus.MustRegister(GraphNodes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
