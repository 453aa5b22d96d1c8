package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestRuns counts ingestion runs by mode (company, rebuild) and result.
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	// IngestDuration observes ingestion run duration by mode.
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hierctx",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"mode"},
	)

	// IngestChunks counts chunks written by partition.
	IngestChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written by partition",
		},
		[]string{"partition"},
	)

	// WatchTriggers counts reindexes started by the corpus watcher.
	WatchTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hierctx",
			Subsystem: "ingest",
			Name:      "watch_triggers_total",
			Help:      "Reindexes triggered by corpus changes",
		},
		[]string{"result"},
	)
)
