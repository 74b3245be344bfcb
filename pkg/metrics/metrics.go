// Package metrics provides Prometheus metrics for the relational graph service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relational"

var (
	// RelationshipMutations counts relationship mutations by event type and outcome.
	RelationshipMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relationships",
			Name:      "mutations_total",
			Help:      "Relationship mutations by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// HalfAppliedWrites counts bidirectional writes whose mirror write failed.
	HalfAppliedWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relationships",
			Name:      "half_applied_total",
			Help:      "Bidirectional writes that persisted only the source side",
		},
	)

	// VersionConflicts counts optimistic concurrency retries.
	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "version_conflicts_total",
			Help:      "Writes rejected because the stored version moved on",
		},
	)

	// CascadesExecuted counts cascade updates by final status.
	CascadesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascades",
			Name:      "executed_total",
			Help:      "Cascade updates by final status",
		},
		[]string{"status"},
	)

	// CascadeDuration tracks how long a cascade list takes to apply.
	CascadeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cascades",
			Name:      "execution_duration_seconds",
			Help:      "Duration of cascade list execution in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// TraceabilityChainLength tracks the number of links per built chain.
	TraceabilityChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "traceability",
			Name:      "chain_links",
			Help:      "Number of links in built traceability chains",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ComplianceAssessments counts assessments by resulting status.
	ComplianceAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "assessments_total",
			Help:      "Compliance assessments by resulting status",
		},
		[]string{"status"},
	)

	// IntegrityIssues counts issues found by integrity sweeps.
	IntegrityIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "issues_total",
			Help:      "Integrity issues found by sweeps, by entity type",
		},
		[]string{"entity_type"},
	)

	// RepairQueueDepth reports the number of pending repair items.
	RepairQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "queue_depth",
			Help:      "Pending items in the repair queue",
		},
	)
)
