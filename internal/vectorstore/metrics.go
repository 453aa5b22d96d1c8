package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReplaceTotal counts partition replacements.
	// Labels: result (success, error, contaminated)
	ReplaceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "partition_replacements_total",
			Help:      "Total number of partition replacements by result",
		},
		[]string{"result"},
	)

	// ReplaceDuration tracks how long building and committing a generation takes.
	ReplaceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "partition_replace_duration_seconds",
			Help:      "Duration of partition replacements in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	// PartitionChunks tracks the committed chunk count per partition.
	PartitionChunks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "partition_chunks",
			Help:      "Number of chunks in the committed generation of each partition",
		},
		[]string{"partition"},
	)

	// SearchTotal counts searches.
	// Labels: level, result (hit, empty, unknown, error)
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "searches_total",
			Help:      "Total number of level searches by outcome",
		},
		[]string{"level", "result"},
	)

	// SearchDuration tracks search latency per level.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "search_duration_seconds",
			Help:      "Duration of level searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"level"},
	)

	// ContaminationDetected counts chunks rejected for belonging to another partition.
	// Labels: stage (replace, search)
	ContaminationDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "store",
			Name:      "contamination_detected_total",
			Help:      "Total number of cross-tenant contamination detections",
		},
		[]string{"stage"},
	)
)
