package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespaceProver = "proverserver"
)

var (
	// PreparedBlocks count of blocks whose witness was prepared
	PreparedBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceProver,
			Name:      "prepared_blocks_total",
			Help:      "",
		})

	// LoadedBlocks count of committed blocks loaded into the pool
	LoadedBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceProver,
			Name:      "loaded_blocks_total",
			Help:      "",
		})

	// FailedBuilds count of maintainer cycles aborted by an error
	FailedBuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceProver,
			Name:      "failed_builds_total",
			Help:      "",
		})

	// ServedWitnesses count of prepared witnesses handed to consumers
	ServedWitnesses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceProver,
			Name:      "served_witnesses_total",
			Help:      "",
		})

	// LastPreparedBlockNum last block number with prepared witness data
	LastPreparedBlockNum = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceProver,
			Name:      "last_prepared_block_num",
			Help:      "",
		})

	// PoolPendingOps count of operations pending preparation in the pool
	PoolPendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceProver,
			Name:      "pool_pending_ops",
			Help:      "",
		})

	// CacheHeight height of the account state cache
	CacheHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceProver,
			Name:      "account_state_cache_height",
			Help:      "",
		})

	// BuildProverData duration of the per-block witness build
	BuildProverData = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceProver,
			Name:      "build_prover_data",
			Help:      "",
		}, []string{"block_number"})
)

func init() {
	prometheus.MustRegister(PreparedBlocks)
	prometheus.MustRegister(LoadedBlocks)
	prometheus.MustRegister(FailedBuilds)
	prometheus.MustRegister(ServedWitnesses)
	prometheus.MustRegister(LastPreparedBlockNum)
	prometheus.MustRegister(PoolPendingOps)
	prometheus.MustRegister(CacheHeight)
	prometheus.MustRegister(BuildProverData)
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}
