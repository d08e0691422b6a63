package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_events_ingested_total",
		Help: "Total number of events durably accepted by the ingestion gateway.",
	})

	BatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatlens_batches_rejected_total",
		Help: "Total number of rejected ingestion requests, labelled by reason.",
	}, []string{"reason"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_rate_limited_total",
		Help: "Total number of ingestion requests rejected by the rate limiter.",
	})

	EventsBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_events_buffered_total",
		Help: "Total number of events diverted to the in-memory fallback buffer.",
	})

	BufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heatlens_ingest_buffer_depth",
		Help: "Current number of events waiting in the fallback buffer.",
	})

	RealtimePublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_realtime_published_total",
		Help: "Total number of events fanned out to the realtime channel.",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_cache_hits_total",
		Help: "Total number of query results served from the cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatlens_cache_misses_total",
		Help: "Total number of query cache misses resolved from the stores.",
	})

	AggregationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatlens_aggregation_runs_total",
		Help: "Total number of aggregation job runs, labelled by job and status.",
	}, []string{"job", "status"})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "heatlens_aggregation_duration_seconds",
		Help:    "Wall-clock duration of aggregation job runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})
)
