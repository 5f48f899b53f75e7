// Package metrics exposes Prometheus collectors for the merge pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"variant-merger/internal/models"
)

const namespace = "variant_merger"

// Metrics tracks system metrics on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsEnqueued   prometheus.Counter
	jobsClaimed    prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsRetried    prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsReclaimed  prometheus.Counter
	itemsProcessed prometheus.Counter
	mergeDuration  prometheus.Histogram
	oracleCalls    *prometheus.CounterVec
	queueJobs      *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_enqueued_total",
			Help: "Total number of merge jobs enqueued",
		}),
		jobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_claimed_total",
			Help: "Total number of merge jobs claimed for processing",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_completed_total",
			Help: "Total number of merge jobs completed",
		}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_retried_total",
			Help: "Total number of failed attempts returned to pending",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_failed_total",
			Help: "Total number of merge jobs that exhausted their attempts",
		}),
		jobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs_timed_out_total",
			Help: "Total number of stuck jobs force-failed by cleanup",
		}),
		itemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "merge", Name: "items_processed_total",
			Help: "Total number of source items merged into combined items",
		}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "merge", Name: "duration_seconds",
			Help:    "Duration of merge executions in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "oracle", Name: "calls_total",
			Help: "Total number of oracle calls by provider, operation and outcome",
		}, []string{"provider", "op", "outcome"}),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "jobs",
			Help: "Queue jobs by status as of the last status read",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.jobsEnqueued, m.jobsClaimed, m.jobsCompleted, m.jobsRetried, m.jobsFailed, m.jobsReclaimed,
		m.itemsProcessed, m.mergeDuration, m.oracleCalls, m.queueJobs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementEnqueuedJobs increments the enqueued jobs counter
func (m *Metrics) IncrementEnqueuedJobs() {
	if m == nil {
		return
	}
	m.jobsEnqueued.Inc()
}

// AddClaimedJobs adds to the claimed jobs counter
func (m *Metrics) AddClaimedJobs(n int) {
	if m == nil {
		return
	}
	m.jobsClaimed.Add(float64(n))
}

// IncrementCompletedJobs increments the completed jobs counter
func (m *Metrics) IncrementCompletedJobs() {
	if m == nil {
		return
	}
	m.jobsCompleted.Inc()
}

// IncrementRetriedJobs increments the retried jobs counter
func (m *Metrics) IncrementRetriedJobs() {
	if m == nil {
		return
	}
	m.jobsRetried.Inc()
}

// IncrementFailedJobs increments the terminally failed jobs counter
func (m *Metrics) IncrementFailedJobs() {
	if m == nil {
		return
	}
	m.jobsFailed.Inc()
}

// AddTimedOutJobs adds to the stuck jobs counter
func (m *Metrics) AddTimedOutJobs(n int64) {
	if m == nil {
		return
	}
	m.jobsReclaimed.Add(float64(n))
}

// ObserveMerge records a successful merge of n source items
func (m *Metrics) ObserveMerge(n int, took time.Duration) {
	if m == nil {
		return
	}
	m.itemsProcessed.Add(float64(n))
	m.mergeDuration.Observe(took.Seconds())
}

// ObserveOracleCall records the outcome of an oracle call
func (m *Metrics) ObserveOracleCall(provider, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.oracleCalls.WithLabelValues(provider, op, outcome).Inc()
}

// SetQueueCounts publishes the latest queue counts
func (m *Metrics) SetQueueCounts(counts models.QueueCounts) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(string(models.StatusPending)).Set(float64(counts.Pending))
	m.queueJobs.WithLabelValues(string(models.StatusProcessing)).Set(float64(counts.Processing))
	m.queueJobs.WithLabelValues(string(models.StatusCompleted)).Set(float64(counts.Completed))
	m.queueJobs.WithLabelValues(string(models.StatusFailed)).Set(float64(counts.Failed))
}
