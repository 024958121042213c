package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the service's Prometheus metrics. All metrics are
// registered against the registry passed in, so tests can use isolated
// registries.
type Collector struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ValidationsTotal  *prometheus.CounterVec
	DocumentsLoaded   prometheus.Gauge
}

// NewCollector creates and registers the service metrics.
func NewCollector(registry *prometheus.Registry) *Collector {
	c := &Collector{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleengine_executions_total",
				Help: "Total rule executions by rule name and outcome.",
			},
			[]string{"rule", "outcome"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruleengine_execution_duration_seconds",
				Help:    "Rule execution latency.",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"rule"},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleengine_validations_total",
				Help: "Document validations by outcome.",
			},
			[]string{"outcome"},
		),
		DocumentsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruleengine_documents_cached",
				Help: "Rule documents currently held in the engine cache.",
			},
		),
	}

	registry.MustRegister(
		c.ExecutionsTotal,
		c.ExecutionDuration,
		c.ValidationsTotal,
		c.DocumentsLoaded,
	)
	return c
}

// RecordExecution counts one execution and its latency.
func (c *Collector) RecordExecution(rule, outcome string, seconds float64) {
	c.ExecutionsTotal.WithLabelValues(rule, outcome).Inc()
	c.ExecutionDuration.WithLabelValues(rule).Observe(seconds)
}

// RecordValidation counts one document validation.
func (c *Collector) RecordValidation(outcome string) {
	c.ValidationsTotal.WithLabelValues(outcome).Inc()
}
