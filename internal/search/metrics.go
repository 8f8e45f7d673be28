// Package search Prometheus metrics for query execution.
package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts search requests.
	// Labels: result (cache_hit, executed, error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexd",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search requests by outcome",
		},
		[]string{"result"},
	)

	// SearchLatency tracks vector index query latency.
	SearchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "indexd",
			Subsystem: "search",
			Name:      "ann_latency_seconds",
			Help:      "Latency of vector index queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
