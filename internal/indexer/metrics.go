// Package indexer Prometheus metrics for index runs.
package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts index runs by terminal status.
	// Labels: status (indexed, skipped, empty, failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexd",
			Subsystem: "indexer",
			Name:      "runs_total",
			Help:      "Total number of index runs by terminal status",
		},
		[]string{"status"},
	)

	// ChunksIndexed counts chunks written to the ground truth.
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexd",
			Subsystem: "indexer",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks written to the ground truth store",
		},
	)
)
