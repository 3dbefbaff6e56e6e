// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Connection attempt and indexer request outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeRefused   = "refused"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

// Metrics groups the collectors shared by the gateway components.
type Metrics struct {
	ConnectionAttempts *prometheus.CounterVec
	LiveConnections    *prometheus.GaugeVec
	StaleReconnects    *prometheus.CounterVec
	QueryResults       *prometheus.CounterVec
	IndexerRequests    *prometheus.CounterVec
	EndpointLatency    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrate_gateway",
			Name:      "connection_attempts_total",
			Help:      "Connection attempts per network by outcome.",
		}, []string{"network", "outcome"}),
		LiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "substrate_gateway",
			Name:      "live_connections",
			Help:      "Whether a live connection is held for the network.",
		}, []string{"network"}),
		StaleReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrate_gateway",
			Name:      "stale_connections_total",
			Help:      "Stored connections found disconnected and discarded.",
		}, []string{"network"}),
		QueryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrate_gateway",
			Name:      "query_results_total",
			Help:      "Chain queries by name and result status.",
		}, []string{"network", "query", "status"}),
		IndexerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrate_gateway",
			Name:      "indexer_requests_total",
			Help:      "Indexer requests by network and outcome.",
		}, []string{"network", "outcome"}),
		EndpointLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "substrate_gateway",
			Name:      "endpoint_check_latency_seconds",
			Help:      "Latency of successful endpoint health checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network"}),
	}
	reg.MustRegister(
		m.ConnectionAttempts,
		m.LiveConnections,
		m.StaleReconnects,
		m.QueryResults,
		m.IndexerRequests,
		m.EndpointLatency,
	)
	return m
}

// NewNop returns collectors registered with a private registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
