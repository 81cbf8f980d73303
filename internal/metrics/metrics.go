// Package metrics defines the Prometheus collectors for the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, route pattern and
	// status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savt_http_requests_total",
		Help: "HTTP requests processed, by method, route and status code.",
	}, []string{"method", "route", "code"})

	// RequestDuration observes HTTP request latency by route pattern.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savt_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// OperationsTotal counts engine operations by name and outcome
	// (ok, already_exists, not_found, invalid_name, conflict,
	// unavailable, internal).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savt_operations_total",
		Help: "Consensus engine operations, by operation and outcome.",
	}, []string{"operation", "outcome"})
)
