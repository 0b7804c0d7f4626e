// Package metrics exposes Prometheus instrumentation for the market-making
// core. Collectors are registered with the default registry via promauto and
// served by the host process on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed quoting cycles per user.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_cycles_total",
			Help: "Total number of market-making cycles run",
		},
		[]string{"uid", "symbol"},
	)

	// CycleErrorsTotal counts cycles aborted by a transient error.
	CycleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_cycle_errors_total",
			Help: "Total number of cycles aborted by an error",
		},
		[]string{"uid", "symbol", "stage"},
	)

	// OrdersPlacedTotal counts successfully submitted quotes.
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_orders_placed_total",
			Help: "Total number of maker quotes placed",
		},
		[]string{"uid", "symbol", "side"},
	)

	// OrdersCanceledTotal counts cancellations by removal path.
	OrdersCanceledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_orders_canceled_total",
			Help: "Total number of maker quotes canceled",
		},
		[]string{"uid", "symbol", "reason"},
	)

	// FillsTotal counts confirmed fill events applied to inventory.
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_fills_total",
			Help: "Total number of fill events applied",
		},
		[]string{"uid", "symbol", "side"},
	)

	// RateLimitDeniedTotal counts order attempts denied by the token bucket.
	RateLimitDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makerbot_rate_limit_denied_total",
			Help: "Total number of order operations denied by the rate limiter",
		},
		[]string{"uid", "exchange", "operation"},
	)

	// ActiveSessions tracks currently running market-making sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "makerbot_active_sessions",
			Help: "Number of running market-making sessions",
		},
	)

	// Inventory tracks the signed net position per user session.
	Inventory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "makerbot_inventory",
			Help: "Signed net inventory per user session",
		},
		[]string{"uid", "symbol"},
	)
)
