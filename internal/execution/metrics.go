package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OrdersSentTotal tracks orders submitted per mode.
	OrdersSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_orders_sent_total",
			Help: "Total number of orders submitted",
		},
		[]string{"mode"},
	)

	// OrdersFilledTotal tracks filled orders per mode and direction.
	OrdersFilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_orders_filled_total",
			Help: "Total number of orders filled",
		},
		[]string{"mode", "direction"},
	)

	// OrdersRejectedTotal tracks orders rejected before submission.
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_orders_rejected_total",
			Help: "Total number of orders rejected before submission",
		},
		[]string{"mode", "reason"},
	)

	// OrderTimeoutsTotal tracks live orders cancelled after the fill timeout.
	OrderTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_execution_order_timeouts_total",
		Help: "Total number of live orders cancelled after the fill timeout",
	})

	// FillLatencySeconds tracks time from submission to confirmed fill.
	FillLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "updown_execution_fill_latency_seconds",
			Help:    "Time from order submission to confirmed fill",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"mode"},
	)
)
