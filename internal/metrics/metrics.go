// Package metrics records invocation outcomes as Prometheus series.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
	OutcomeLaunchError = "launch_error"
)

// Metrics tracks provider invocations and resume fallbacks.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
	fallbacks   *prometheus.CounterVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide recorder registered with the default registry.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New builds a recorder on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foreman",
			Subsystem: "provider",
			Name:      "invocations_total",
			Help:      "Provider invocations by provider and outcome",
		}, []string{"provider", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "foreman",
			Subsystem: "provider",
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of provider invocations",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"provider"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "foreman",
			Subsystem: "provider",
			Name:      "invocations_in_flight",
			Help:      "Provider processes currently running",
		}, []string{"provider"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foreman",
			Subsystem: "resume",
			Name:      "fallbacks_total",
			Help:      "Resume attempts that failed or came back empty and were retried fresh",
		}, []string{"provider"}),
	}
}

// Started marks a process as running.
func (m *Metrics) Started(provider string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(provider).Inc()
}

// Finished records a terminal invocation. Pair with Started unless the
// process never launched.
func (m *Metrics) Finished(provider, outcome string, d time.Duration, launched bool) {
	if m == nil {
		return
	}
	if launched {
		m.inFlight.WithLabelValues(provider).Dec()
	}
	m.invocations.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(d.Seconds())
}

// Fallback records a resume attempt that was retried fresh.
func (m *Metrics) Fallback(provider string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(provider).Inc()
}
