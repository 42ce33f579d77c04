package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Staking operation metrics
	// ============================================
	StakingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_staking_operations_total",
			Help: "Total number of staking operations processed",
		},
		[]string{"operation", "result"},
	)

	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_staking_active_positions",
		Help: "Number of active stake positions",
	})

	RewardsPaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_staking_reward_payouts_total",
			Help: "Total number of reward settlements through the ledger",
		},
		[]string{"operation"},
	)

	// ============================================
	// Swap operation metrics
	// ============================================
	SwapOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_swap_operations_total",
			Help: "Total number of swap operations processed",
		},
		[]string{"operation", "result"},
	)

	PoolReserve = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_pool_reserve",
			Help: "Pool reserve level (float approximation for dashboards; the ledger itself is integer-exact)",
		},
		[]string{"pair", "side"},
	)

	SwapPriceImpactBps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_swap_price_impact_bps",
		Help:    "Price impact of executed swaps in basis points",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// ============================================
	// Operation latency
	// ============================================
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "End-to-end operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ============================================
	// Event publishing metrics
	// ============================================
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Total number of NATS events published",
		},
		[]string{"subject"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_failed_total",
			Help: "Total number of NATS events that failed to publish",
		},
		[]string{"subject"},
	)
)
