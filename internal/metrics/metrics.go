// internal/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// DispatchOutcomes counts terminal and retried delivery attempts.
	DispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_dispatch_outcomes_total",
			Help: "Delivery attempt outcomes (sent, retried, failed, skipped)",
		},
		[]string{"outcome"},
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_delivery_latency_seconds",
			Help:    "Time from ledger row creation to successful delivery",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCount, RequestDuration, DispatchOutcomes, DeliveryLatency)
}
