package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firerisk_upstream_requests_total",
			Help: "Total requests made to the upstream fire data API",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firerisk_upstream_latency_seconds",
			Help:    "Upstream fire data API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	StoreFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firerisk_store_fetches_total",
			Help: "Store fetch attempts by outcome (success, failure, discarded)",
		},
		[]string{"store", "outcome"},
	)

	StoreRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "firerisk_store_records",
			Help: "Number of records in the current store snapshot",
		},
		[]string{"store"},
	)

	StoreLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "firerisk_store_last_success_timestamp_seconds",
			Help: "Unix time of the last successful store fetch",
		},
		[]string{"store"},
	)

	SelectionChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firerisk_selection_changes_total",
			Help: "Logical changes of the focused county by event source",
		},
		[]string{"source"},
	)

	JoinMisses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "firerisk_join_misses",
			Help: "Counties present in only one of the two datasets",
		},
		[]string{"missing"},
	)

	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firerisk_alerts_sent_total",
			Help: "Fire danger alert emails by outcome",
		},
		[]string{"outcome"},
	)

	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firerisk_chat_requests_total",
			Help: "Chat requests by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
)
