package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecurringExecutions counts per-rule executions by outcome
	// (succeeded, failed, skipped, advance_failed) and trigger (batch, manual).
	RecurringExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_rule_executions_total",
			Help: "Recurring rule executions by outcome",
		},
		[]string{"outcome", "trigger"},
	)

	RecurringFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_rule_failures_total",
			Help: "Recurring rule execution failures by stage and error class",
		},
		[]string{"stage", "reason"},
	)

	RecurringBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recurring_batch_duration_seconds",
			Help:    "Duration of one due-rules batch pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	RecurringDueRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recurring_due_rules",
			Help: "Rules selected as due in the latest batch pass",
		},
	)

	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_record_failures_total",
			Help: "Audit events that could not be stored or published",
		},
		[]string{"sink"},
	)

	DBSlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"command"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

func IncrementExecution(outcome, trigger string) {
	RecurringExecutions.WithLabelValues(outcome, trigger).Inc()
}

func IncrementFailure(stage, reason string) {
	RecurringFailures.WithLabelValues(stage, reason).Inc()
}

func RecordBatch(due int, duration time.Duration) {
	RecurringDueRules.Set(float64(due))
	RecurringBatchDuration.Observe(duration.Seconds())
}

func IncrementAuditFailure(sink string) {
	AuditFailures.WithLabelValues(sink).Inc()
}

// RecordQuery observes one query; slow ones also bump DBSlowQueries.
func RecordQuery(command string, duration time.Duration, slow bool) {
	DBQueryDuration.WithLabelValues(command).Observe(duration.Seconds())
	if slow {
		DBSlowQueries.Inc()
	}
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
