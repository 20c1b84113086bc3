// Package metrics defines the vaultprops_* Prometheus collectors. Each
// Metrics value owns a private registry, so tests and embedded sources do
// not collide on the global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultprops"

// Metrics groups the source and HTTP collectors with the Go runtime and
// process collectors.
type Metrics struct {
	registry *prometheus.Registry

	Source *SourceMetrics
	Server *ServerMetrics
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	return &Metrics{
		registry: registry,
		Source:   newSourceMetrics(registry),
		Server:   newServerMetrics(registry),
	}
}

// Handler serves the registry in the Prometheus text or OpenMetrics
// format, whichever the scraper asks for.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:            m.registry,
		EnableOpenMetrics:   true,
		MaxRequestsInFlight: 10,
	})
}

// Registry exposes the registry for extra collectors and for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
