// Package metrics provides Prometheus metrics for the connection service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks relationship operations by name and outcome
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardlink",
			Subsystem: "connections",
			Name:      "operations_total",
			Help:      "Total number of relationship operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// ConsistencyFaults tracks detected ledger/cache disagreements
	ConsistencyFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardlink",
			Subsystem: "graph_cache",
			Name:      "consistency_faults_total",
			Help:      "Number of times the graph cache disagreed with the ledger",
		},
		[]string{"source"},
	)

	// CacheWriteRetries tracks retried cache side effects
	CacheWriteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardlink",
			Subsystem: "graph_cache",
			Name:      "write_retries_total",
			Help:      "Number of retried graph cache writes",
		},
		[]string{"operation"},
	)

	// RepairsTotal tracks pair repairs by outcome
	RepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardlink",
			Subsystem: "graph_cache",
			Name:      "repairs_total",
			Help:      "Number of pair repairs by outcome",
		},
		[]string{"outcome"},
	)

	// RepairQueueDropped tracks reports dropped because the repair queue was full
	RepairQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardlink",
			Subsystem: "graph_cache",
			Name:      "repair_queue_dropped_total",
			Help:      "Number of repair reports dropped because the queue was full",
		},
	)

	// RebuildDuration tracks full cache rebuilds in seconds
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cardlink",
			Subsystem: "graph_cache",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of full graph cache rebuilds in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)
