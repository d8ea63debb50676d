package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklog_events_ingested_total",
			Help: "Total number of tracking events appended to the log",
		},
		[]string{"reference_type", "source"},
	)

	DuplicateEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklog_duplicate_events_total",
			Help: "Submissions rejected because their external event id was already recorded",
		},
	)

	SequenceConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklog_sequence_conflicts_total",
			Help: "Sequence allocations retried after a concurrent writer took the same value",
		},
	)

	ReferenceLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklog_reference_lookup_failures_total",
			Help: "Batched registry lookups that failed outright",
		},
		[]string{"reference_type"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklog_publish_failures_total",
			Help: "Kafka publications that failed after retries",
		},
		[]string{"topic"},
	)

	StalledAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklog_stalled_alerts_total",
			Help: "Stalled-item alerts published by the sweeper",
		},
		[]string{"reference_type"},
	)

	ReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracklog_read_duration_seconds",
			Help:    "Duration of read operations over the log",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)
