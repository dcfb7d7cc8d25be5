// Package metrics exposes the resilience counters both as Prometheus series
// and as on-demand snapshots for health endpoints and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks call attempts per provider.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchgate_api_attempts_total",
			Help: "Total number of API call attempts",
		},
		[]string{"provider"},
	)

	// RetriesTotal tracks scheduled retries per provider.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchgate_api_retries_total",
			Help: "Total number of retried API calls",
		},
		[]string{"provider"},
	)

	// SuccessesTotal tracks successful calls per provider.
	SuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchgate_api_successes_total",
			Help: "Total number of successful API calls",
		},
		[]string{"provider"},
	)

	// FailuresTotal tracks failed calls per provider and category.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchgate_api_failures_total",
			Help: "Total number of failed API calls",
		},
		[]string{"provider", "category"},
	)

	// RetryDelaySeconds tracks backoff delays applied before retries.
	RetryDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merchgate_retry_delay_seconds",
			Help:    "Backoff delay applied before a retry",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"provider"},
	)

	// RequestLatency tracks transport round-trip latency.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merchgate_request_latency_seconds",
			Help:    "Provider request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// BreakerState reports the circuit state per provider
	// (0=closed, 1=open, 2=half_open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merchgate_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"provider"},
	)

	// ThrottleAvailableUnits reports the current cost budget per provider.
	ThrottleAvailableUnits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merchgate_throttle_available_units",
			Help: "Cost units currently available in the local throttle model",
		},
		[]string{"provider"},
	)

	// AlertsTotal tracks raised alerts per rule.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchgate_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"rule"},
	)
)
