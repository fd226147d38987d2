// Package knnserver exposes the KNN serving engine over HTTP: the search
// and metadata endpoints, health checks, and Prometheus metrics.
package knnserver

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus metrics this server exposes at /metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResultsReturned *prometheus.HistogramVec
}

// NewMetrics creates and registers this server's Prometheus metrics.
// sync.Once guards against "duplicate metrics collector registration"
// panics if NewMetrics is called more than once in a process.
//
// Metrics:
//   - knn_requests_total{operation,status} - requests by operation and outcome
//   - knn_request_duration_seconds{operation} - latency per operation
//   - knn_results_returned{operation} - result-set size per search
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knn_requests_total",
					Help: "Total number of KNN serving engine requests",
				},
				[]string{"operation", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "knn_request_duration_seconds",
					Help:    "Request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
				},
				[]string{"operation"},
			),
			ResultsReturned: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "knn_results_returned",
					Help:    "Number of results returned per search",
					Buckets: prometheus.LinearBuckets(0, 5, 10),
				},
				[]string{"operation"},
			),
		}
	})
	return globalMetrics
}

// Observe records one request's outcome and latency for operation.
func (m *Metrics) Observe(operation string, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveResultCount records the size of a search's result set.
func (m *Metrics) ObserveResultCount(operation string, count int) {
	m.ResultsReturned.WithLabelValues(operation).Observe(float64(count))
}
