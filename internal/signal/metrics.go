package signal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SnapshotsTotal tracks recorded price snapshots per side.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_signal_snapshots_total",
			Help: "Total number of price snapshots recorded",
		},
		[]string{"side"},
	)

	// InvalidPricesTotal tracks rejected placeholder/invalid prices.
	InvalidPricesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_signal_invalid_prices_total",
			Help: "Total number of prices rejected as invalid or below the validity floor",
		},
		[]string{"side"},
	)

	// DumpsDetectedTotal tracks positive dump detections per side.
	DumpsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_signal_dumps_detected_total",
			Help: "Total number of dump detections",
		},
		[]string{"side"},
	)
)
