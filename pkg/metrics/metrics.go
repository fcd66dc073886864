package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContactsProcessed tracks per-record outcomes
	// status: synced, failed
	ContactsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobilize_sync_contacts_total",
		Help: "Total number of pending contacts processed, by outcome",
	}, []string{"status"})

	// UpsertDuration measures the latency of each create-or-update call to Action Network
	UpsertDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mobilize_sync_upsert_duration_seconds",
		Help:    "Duration of Action Network person upserts in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})

	// BatchDuration measures a full run: fetch, upserts and log write
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mobilize_sync_batch_duration_seconds",
		Help:    "Duration of a sync run in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of pending contacts fetched per run
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mobilize_sync_batch_size",
		Help:    "Number of pending contacts fetched per run",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	// RunFailures counts runs aborted by a warehouse fetch or log write error
	RunFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobilize_sync_run_failures_total",
		Help: "Runs aborted by a batch-level error",
	}, []string{"stage"}) // stage: fetch, log_write

	// EventPublishFailures counts sync events the broker did not confirm
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobilize_sync_event_publish_failures_total",
		Help: "Sync events that failed to publish to RabbitMQ",
	})

	// LastSuccessfulRun holds the unix time of the last run that wrote its log
	LastSuccessfulRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mobilize_sync_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last completed sync run",
	})

	// HealthStatus is 1 while the broker link is up, 0 otherwise
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mobilize_sync_broker_healthy",
		Help: "Current health status of the RabbitMQ link (1 for healthy, 0 for unhealthy)",
	})
)
