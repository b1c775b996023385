package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeForwarded      = "forwarded"
	OutcomeMissingFields  = "missing_fields"
	OutcomeDecodeError    = "decode_error"
	OutcomeDeliveryError  = "delivery_error"
	OutcomeRateLimited    = "rate_limited"
	OutcomeTooLarge       = "too_large"
	OutcomeMethodNotAllow = "method_not_allowed"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_relay_requests_total",
			Help: "Total number of relay requests by outcome",
		},
		[]string{"outcome"},
	)

	RequestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_relay_request_bytes_total",
			Help: "Total bytes of request bodies read",
		},
	)

	// Telemetry metrics
	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_relay_events_forwarded_total",
			Help: "Total number of telemetry events handed to the telemetry client",
		},
		[]string{"event"},
	)

	TelemetrySendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_relay_telemetry_send_duration_seconds",
			Help:    "Duration of telemetry track calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_relay_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
	)

	// Mirror metrics
	MirrorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_relay_mirror_errors_total",
			Help: "Total number of failed mirror publishes",
		},
	)
)
