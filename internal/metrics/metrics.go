// Package metrics holds the Prometheus collectors shared across packages.
//
// Batching:
//   - pfp_batches_total{trigger} (Counter): flushed batches by trigger (size, timer, close)
//   - pfp_batch_size (Histogram): distinct owners per flushed batch
//   - pfp_batch_duration_seconds (Histogram): pipeline duration per batch
//   - pfp_waiters_total{outcome} (Counter): settled waiters by outcome (success, failure)
//   - pfp_item_failures_total{reason} (Counter): failed items by reason
//
// Resolution:
//   - pfp_resolutions_total{available} (Counter): public resolutions by availability
//
// RPC:
//   - pfp_rpc_requests_total{method, status} (Counter)
//   - pfp_rpc_request_duration_seconds{method} (Histogram)
//   - pfp_metadata_fetches_total{status} (Counter): off-chain JSON fetches
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_batches_total",
			Help: "Total number of flushed resolution batches",
		},
		[]string{"trigger"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pfp_batch_size",
			Help:    "Distinct owner keys per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pfp_batch_duration_seconds",
			Help:    "Time spent running one batch through the pipeline",
			Buckets: prometheus.DefBuckets,
		},
	)

	WaitersSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_waiters_total",
			Help: "Total number of settled waiters by outcome",
		},
		[]string{"outcome"},
	)

	ItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_item_failures_total",
			Help: "Total number of batch items failed, by reason",
		},
		[]string{"reason"},
	)

	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_resolutions_total",
			Help: "Total number of profile picture resolutions",
		},
		[]string{"available"},
	)

	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_rpc_requests_total",
			Help: "Total number of Solana RPC requests",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pfp_rpc_request_duration_seconds",
			Help:    "Solana RPC request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	MetadataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfp_metadata_fetches_total",
			Help: "Total number of off-chain metadata JSON fetches",
		},
		[]string{"status"},
	)
)
