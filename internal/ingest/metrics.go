package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recentmessages_irc_forwarder_queue_dropped_total",
		Help: "Total number of inbound messages dropped because the internal queue was full",
	})

	chunkSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recentmessages_irc_forwarder_store_chunk_size",
		Help:    "Number of messages flushed to storage per batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	chunkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "recentmessages_irc_forwarder_store_chunk_duration_seconds",
		Help: "Time taken to flush one batch of messages to storage",
	})
)

func init() {
	prometheus.MustRegister(queueDropped, chunkSize, chunkDuration)
}
