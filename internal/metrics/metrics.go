// Package metrics exposes Prometheus instrumentation for the event
// pipeline, detectors, blocking, and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsSubmittedTotal counts events offered to the pipeline by outcome
	// (accepted, rejected_queue_full, rejected_invalid).
	EventsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_submitted_total",
			Help: "Total events submitted to the pipeline",
		},
		[]string{"status"},
	)

	// EventsProcessedTotal counts events that completed the full pipeline.
	EventsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_events_processed_total",
			Help: "Total events fully processed",
		},
	)

	// QueueDepth is the current number of events waiting in the queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_queue_depth",
			Help: "Events currently waiting in the pipeline queue",
		},
	)

	// ThreatsDetectedTotal counts classifications by level and type.
	ThreatsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_threats_detected_total",
			Help: "Total threat classifications at or above low severity",
		},
		[]string{"level", "threat_type"},
	)

	// BlocksAppliedTotal counts firewall blocks by severity.
	BlocksAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_blocks_applied_total",
			Help: "Total IP blocks applied",
		},
		[]string{"severity"},
	)

	// BlocksActive is the current number of active blocks.
	BlocksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_blocks_active",
			Help: "IP blocks currently in force",
		},
	)

	// AlertsTotal counts alert handling by disposition
	// (sent, deduplicated, batched).
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Alert dispositions",
		},
		[]string{"disposition"},
	)

	// ReputationLookupsTotal counts threat-intel lookups by result
	// (cache_hit, fetched, rate_limited, error).
	ReputationLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reputation_lookups_total",
			Help: "External reputation lookups",
		},
		[]string{"result"},
	)
)
