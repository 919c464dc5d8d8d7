package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcert_upstream_requests_total",
		Help: "Outbound calls to the payment gateway and the CRM.",
	}, []string{"service", "endpoint", "outcome"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftcert_upstream_request_duration_seconds",
		Help:    "Latency of outbound calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"service", "endpoint"})

	certificates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcert_certificates_total",
		Help: "Certificate provisioning attempts by entry point and outcome.",
	}, []string{"source", "outcome"})
)

// ObserveUpstream records one outbound call.
func ObserveUpstream(service, endpoint string, ok bool, started time.Time) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(service, endpoint, outcome).Inc()
	upstreamDuration.WithLabelValues(service, endpoint).Observe(time.Since(started).Seconds())
}

// CertificateIssued counts a provisioning outcome, e.g. ("confirmation", "issued").
func CertificateIssued(source, outcome string) {
	certificates.WithLabelValues(source, outcome).Inc()
}
