package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "events",
		Name:      "processed_total",
		Help:      "Total number of quest events applied to the store",
	}, []string{"event"})

	decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "events",
		Name:      "decode_failures_total",
		Help:      "Total number of logs that failed to decode and were skipped",
	})

	unknownEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "events",
		Name:      "unknown_total",
		Help:      "Total number of logs with unrecognized event signatures",
	})

	degradedQuests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quest_indexer",
		Subsystem: "events",
		Name:      "degraded_quests_total",
		Help:      "Total number of quest records stored from event arguments after a failed contract read",
	})
)
