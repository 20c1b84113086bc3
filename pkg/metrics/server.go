package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics holds HTTP server metrics.
type ServerMetrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
}

func newServerMetrics(registry *prometheus.Registry) *ServerMetrics {
	m := &ServerMetrics{
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(m.HTTPRequestDuration, m.HTTPRequestsTotal)
	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *ServerMetrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
