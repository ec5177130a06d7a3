package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "batches_processed_total",
		Help:      "Total number of block batches processed",
	})

	batchesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "batches_skipped_total",
		Help:      "Total number of batches skipped after exhausted log-fetch retries",
	})

	ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "ticks_skipped_total",
		Help:      "Total number of poll ticks skipped because a run was in flight",
	})

	statusUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "status_updates_total",
		Help:      "Total number of quest status transitions persisted by recomputation",
	})

	cursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "cursor_height",
		Help:      "Last block height fully ingested",
	})

	headHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quest_indexer",
		Subsystem: "ingest",
		Name:      "head_height",
		Help:      "Chain head height observed at the last catch-up",
	})
)
