package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations by queue, operation and outcome",
		},
		[]string{"queue", "operation", "status"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current queue depth per queue and state",
		},
		[]string{"queue", "state"},
	)

	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_validations_total",
			Help: "Scan validation attempts by result code",
		},
		[]string{"result_code"},
	)

	jobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_job_transitions_total",
			Help: "Generation job status transitions",
		},
		[]string{"status"},
	)

	dbPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_in_use_connections",
			Help: "Database connections currently in use",
		},
	)

	dbPoolIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_idle_connections",
			Help: "Idle database connections",
		},
	)
)

// ObserveHTTPRequest records one handled HTTP request
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// TrackQueueOperation counts an enqueue/consume/ack/failure
func TrackQueueOperation(queue, operation, status string) {
	queueOperations.WithLabelValues(queue, operation, status).Inc()
}

// SetQueueDepth reflects the queue's per-state counts
func SetQueueDepth(queue, state string, depth int64) {
	queueDepth.WithLabelValues(queue, state).Set(float64(depth))
}

// TrackScan counts one scan attempt by its result code
func TrackScan(resultCode string) {
	scanOutcomes.WithLabelValues(resultCode).Inc()
}

// TrackJobTransition counts a job lifecycle transition
func TrackJobTransition(status string) {
	jobTransitions.WithLabelValues(status).Inc()
}

// SetDBPoolStats reflects the connection pool usage
func SetDBPoolStats(inUse, idle int) {
	dbPoolInUse.Set(float64(inUse))
	dbPoolIdle.Set(float64(idle))
}

// CollectPoolStats samples pool usage on a fixed interval until stop is closed
func CollectPoolStats(sample func() (inUse, idle int), interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			inUse, idle := sample()
			SetDBPoolStats(inUse, idle)
		}
	}
}
