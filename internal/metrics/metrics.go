package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthFlowsStarted counts authorization flows begun via /login.
	AuthFlowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fhirrelay_auth_flows_started_total",
			Help: "The total number of authorization flows started.",
		},
	)

	// TokenExchanges counts code-for-token exchanges by result.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhirrelay_token_exchanges_total",
			Help: "The total number of token exchange attempts.",
		},
		[]string{"result"},
	)

	// UpstreamRequests counts outbound FHIR calls by endpoint and status.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhirrelay_upstream_requests_total",
			Help: "The total number of outbound FHIR requests.",
		},
		[]string{"endpoint", "code"},
	)

	// RequestDuration is a histogram of inbound request handling time.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fhirrelay_request_duration_seconds",
			Help:    "A histogram of inbound HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)
