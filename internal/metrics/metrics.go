// Package metrics provides Prometheus metrics for idsync.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IdentityRequestsTotal counts identity calls by outcome.
	IdentityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idsync",
			Name:      "identity_requests_total",
			Help:      "Total number of identity requests",
		},
		[]string{"operation", "status"},
	)

	// IdentityRequestDuration measures identity round-trips.
	IdentityRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idsync",
			Name:      "identity_request_duration_seconds",
			Help:      "Duration of identity requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// MPIDSwapsTotal counts changes of the current MPID.
	MPIDSwapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idsync",
			Name:      "mpid_swaps_total",
			Help:      "Total number of MPID swaps",
		},
	)

	// QueuedEventsFlushedTotal counts events replayed after identity resolution.
	QueuedEventsFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idsync",
			Name:      "queued_events_flushed_total",
			Help:      "Total number of queued events flushed after an identity response",
		},
	)

	// ForwarderErrorsTotal counts failed forwarder calls.
	ForwarderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idsync",
			Name:      "forwarder_errors_total",
			Help:      "Total number of forwarder call failures",
		},
		[]string{"forwarder", "method"},
	)

	// StubRequestsTotal counts requests served by the stub identity service.
	StubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idsync",
			Subsystem: "stub",
			Name:      "requests_total",
			Help:      "Total number of requests served by the stub identity service",
		},
		[]string{"operation", "code"},
	)
)

// RecordRequest records a finished identity request.
func RecordRequest(operation, status string, duration float64) {
	IdentityRequestsTotal.WithLabelValues(operation, status).Inc()
	IdentityRequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRejected records a request that never left the process.
func RecordRejected(operation, status string) {
	IdentityRequestsTotal.WithLabelValues(operation, status).Inc()
}

func RecordSwap() {
	MPIDSwapsTotal.Inc()
}

func RecordFlushed(n int) {
	QueuedEventsFlushedTotal.Add(float64(n))
}

func RecordForwarderError(forwarder, method string) {
	ForwarderErrorsTotal.WithLabelValues(forwarder, method).Inc()
}

// RecordStubRequest counts one stub service response.
func RecordStubRequest(operation string, code int) {
	StubRequestsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
}
