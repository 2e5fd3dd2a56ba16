package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the trade execution pipeline.
// A dedicated registry is injected so tests can run isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	stepFailuresTotal *prometheus.CounterVec
	warningsTotal     *prometheus.CounterVec
	executionDuration prometheus.Histogram
}

// New creates and registers the execution metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hypertrader_executions_total",
				Help: "Total number of trade executions reaching the exchange",
			},
			[]string{"symbol", "side", "clean"},
		),
		stepFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hypertrader_step_failures_total",
				Help: "Total number of fatal step failures by execution step",
			},
			[]string{"step"},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hypertrader_warnings_total",
				Help: "Total number of non-fatal post-entry failures by step",
			},
			[]string{"step"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hypertrader_execution_duration_seconds",
				Help:    "Duration of complete trade executions",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(m.executionsTotal, m.stepFailuresTotal, m.warningsTotal, m.executionDuration)
	return m
}

// RecordExecution records a completed execution. clean is false when the
// result carried warnings (missing protective orders or recording failure).
func (m *Metrics) RecordExecution(symbol, side string, clean bool, d time.Duration) {
	label := "true"
	if !clean {
		label = "false"
	}
	m.executionsTotal.WithLabelValues(symbol, side, label).Inc()
	m.executionDuration.Observe(d.Seconds())
}

// RecordStepFailure records a fatal failure at the given execution step.
func (m *Metrics) RecordStepFailure(step string) {
	m.stepFailuresTotal.WithLabelValues(step).Inc()
}

// RecordWarning records a non-fatal post-entry failure at the given step.
func (m *Metrics) RecordWarning(step string) {
	m.warningsTotal.WithLabelValues(step).Inc()
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
