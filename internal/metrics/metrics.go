// Package metrics declares the Prometheus collectors exported by the
// aggregator, named after the component and measurement they describe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTickDurationSeconds observes one scheduler tick's wall time,
	// labeled by chain.
	SchedulerTickDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dex_aggregator_scheduler_tick_duration_seconds",
		Help:    "Duration of one pool scheduler tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"chain"})

	// MulticallBatchFailuresTotal counts batches whose aggregate call itself
	// failed, labeled by chain.
	MulticallBatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_aggregator_multicall_batch_failures_total",
		Help: "Multicall batches whose aggregate call failed outright.",
	}, []string{"chain"})

	// DiscoveryPoolsFoundTotal counts pools discovered by the discovery
	// manager, labeled by chain.
	DiscoveryPoolsFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_aggregator_discovery_pools_found_total",
		Help: "Pools found by the token discovery manager.",
	}, []string{"chain"})

	// DiscoveryAttemptsSkippedTotal counts discovery calls skipped because
	// the per-token retry window had not elapsed.
	DiscoveryAttemptsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_aggregator_discovery_attempts_skipped_total",
		Help: "Discovery attempts skipped due to the retry window gate.",
	}, []string{"chain"})

	// SnapshotRequestDurationSeconds observes snapshot HTTP handler latency,
	// labeled by chain and outcome.
	SnapshotRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dex_aggregator_snapshot_request_duration_seconds",
		Help:    "Duration of a snapshot request, end to end.",
		Buckets: prometheus.DefBuckets,
	}, []string{"chain", "outcome"})

	// SnapshotSyntheticEntriesTotal counts fallback synthetic entries served
	// in place of a real cache/registry hit, labeled by chain.
	SnapshotSyntheticEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_aggregator_snapshot_synthetic_entries_total",
		Help: "Synthetic fallback entries served due to a cold cache or missing route.",
	}, []string{"chain"})
)
