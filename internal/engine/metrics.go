package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// TicksTotal tracks engine tick executions.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_engine_ticks_total",
		Help: "Total number of engine ticks",
	})

	// TickErrorsTotal tracks errors swallowed inside a tick.
	TickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_engine_tick_errors_total",
		Help: "Total number of errors absorbed during ticks",
	})

	// TickDurationSeconds tracks tick latency.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_engine_tick_duration_seconds",
		Help:    "Engine tick duration",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	// CyclesTotal tracks cycles by terminal status.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_engine_cycles_total",
			Help: "Total number of closed cycles",
		},
		[]string{"status"},
	)

	// LockedProfitTotal accumulates locked profit from completed cycles.
	LockedProfitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_engine_locked_profit_total",
		Help: "Cumulative locked profit from completed cycles (USD)",
	})

	// EquityGauge tracks current portfolio equity.
	EquityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_engine_equity",
		Help: "Current portfolio equity (USD)",
	})

	// EventsPublishedTotal tracks published events by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_engine_events_published_total",
			Help: "Total number of events published",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal tracks events dropped on a full subscriber.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_engine_events_dropped_total",
			Help: "Total number of events dropped due to a lagging subscriber",
		},
		[]string{"type"},
	)
)
