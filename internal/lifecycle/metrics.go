package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MarketsDiscovered tracks matching markets found on the last poll.
	MarketsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_lifecycle_markets_discovered",
		Help: "Number of matching up/down markets found on the last discovery poll",
	})

	// DiscoveryErrorsTotal tracks failed discovery polls.
	DiscoveryErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_lifecycle_discovery_errors_total",
		Help: "Total number of failed discovery polls",
	})

	// RateLimitedRequestsTotal tracks polls skipped by the rate limiter.
	RateLimitedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_lifecycle_rate_limited_requests_total",
		Help: "Total number of discovery polls skipped by the rate limiter",
	})

	// TransitionsTotal tracks market lifecycle transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_lifecycle_transitions_total",
			Help: "Total number of market lifecycle transitions",
		},
		[]string{"to"},
	)
)
