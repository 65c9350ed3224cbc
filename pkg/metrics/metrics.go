package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the notification pipeline metrics
type Metrics struct {
	JobsSent           *prometheus.CounterVec
	JobsFailed         *prometheus.CounterVec
	JobsRetried        *prometheus.CounterVec
	JobsSkipped        prometheus.Counter
	JobsDeferred       *prometheus.CounterVec
	JobsRequeued       prometheus.Counter
	SendLatency        *prometheus.HistogramVec
	BatchDuration      prometheus.Histogram
	QueueDepth         *prometheus.GaugeVec
	JobsComposed       *prometheus.CounterVec
	DatabaseOperations *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. A nil reg leaves them unregistered,
// which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_sent_total",
			Help:      "Total number of notification jobs delivered",
		}, []string{"channel"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_failed_total",
			Help:      "Total number of notification jobs that exhausted their attempts",
		}, []string{"channel"}),
		JobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_retried_total",
			Help:      "Total number of failed attempts returned to pending",
		}, []string{"channel"}),
		JobsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_claim_lost_total",
			Help:      "Jobs skipped because another processor claimed them first",
		}),
		JobsDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_deferred_total",
			Help:      "Jobs put back without using an attempt because their provider was unavailable",
		}, []string{"channel"}),
		JobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_swept_total",
			Help:      "Stuck processing jobs reclaimed by the sweep",
		}),
		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_send_duration_seconds",
			Help:      "Time spent in provider send calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel", "provider"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_batch_duration_seconds",
			Help:      "Time spent processing one batch of due jobs",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_jobs",
			Help:      "Current number of queue jobs per status",
		}, []string{"status"}),
		JobsComposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_composed_total",
			Help:      "Total number of jobs created by compose",
		}, []string{"channel"}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsSent,
			m.JobsFailed,
			m.JobsRetried,
			m.JobsSkipped,
			m.JobsDeferred,
			m.JobsRequeued,
			m.SendLatency,
			m.BatchDuration,
			m.QueueDepth,
			m.JobsComposed,
			m.DatabaseOperations,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}
