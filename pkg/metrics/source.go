package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SourceMetrics holds the property source metrics.
type SourceMetrics struct {
	RefreshesTotal     *prometheus.CounterVec
	RefreshDuration    *prometheus.HistogramVec
	SnapshotSecrets    prometheus.Gauge
	LastRefresh        prometheus.Gauge
	SecretFetchErrors  *prometheus.CounterVec
	VaultUp            prometheus.Gauge
	VaultProbeDuration prometheus.Histogram
}

func newSourceMetrics(registry *prometheus.Registry) *SourceMetrics {
	m := &SourceMetrics{
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "refreshes_total",
				Help:      "Total number of snapshot refreshes by mode and result.",
			},
			[]string{"mode", "result"},
		),

		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "refresh_duration_seconds",
				Help:      "Duration of snapshot refreshes in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),

		SnapshotSecrets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "snapshot_secrets",
				Help:      "Number of secrets in the published snapshot.",
			},
		),

		LastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "last_refresh_timestamp_seconds",
				Help:      "Unix time of the last successful refresh.",
			},
		),

		SecretFetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "secret_fetch_errors_total",
				Help:      "Total number of failed vault requests during refreshes.",
			},
			[]string{"kind"},
		),

		VaultUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "vault_up",
				Help:      "Result of the last vault health probe (1 = up).",
			},
		),

		VaultProbeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "vault_probe_duration_seconds",
				Help:      "Duration of vault health probes in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.RefreshesTotal,
		m.RefreshDuration,
		m.SnapshotSecrets,
		m.LastRefresh,
		m.SecretFetchErrors,
		m.VaultUp,
		m.VaultProbeDuration,
	)

	return m
}

// RecordRefresh records a finished refresh. size is only applied on success.
func (m *SourceMetrics) RecordRefresh(mode string, err error, duration time.Duration, size int) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.RefreshesTotal.WithLabelValues(mode, result).Inc()
	m.RefreshDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		m.SnapshotSecrets.Set(float64(size))
		m.LastRefresh.SetToCurrentTime()
	}
}

// RecordFetchError counts a failed vault request by kind.
func (m *SourceMetrics) RecordFetchError(kind string) {
	m.SecretFetchErrors.WithLabelValues(kind).Inc()
}

// RecordProbe records the outcome of a health probe.
func (m *SourceMetrics) RecordProbe(up bool, duration time.Duration) {
	if up {
		m.VaultUp.Set(1)
	} else {
		m.VaultUp.Set(0)
	}
	m.VaultProbeDuration.Observe(duration.Seconds())
}
