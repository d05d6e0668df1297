package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// USDCBalance tracks the current USDC balance for live trading.
	USDCBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdc_balance",
		Help: "Current USDC balance in wallet (USD)",
	})

	// UpdateErrorsTotal tracks the number of failed balance fetches.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_wallet_update_errors_total",
		Help: "Total number of failed wallet balance fetches",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
