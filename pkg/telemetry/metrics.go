package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// Metrics holds the Prometheus instruments of the orchestrator.
type Metrics struct {
	appliesStarted  prometheus.Counter
	appliesFinished *prometheus.CounterVec
	applyDuration   prometheus.Histogram

	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	resourcesManaged prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	ns := cfg.Namespace
	if ns == "" {
		ns = "captura"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		appliesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "applies_started_total",
			Help:      "Apply runs started.",
		}),
		appliesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "applies_finished_total",
			Help:      "Apply runs finished, by outcome.",
		}, []string{"outcome"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "apply_duration_seconds",
			Help:      "Wall time of apply runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "steps_executed_total",
			Help:      "Plan steps executed, by operation and status.",
		}, []string{"op", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_duration_seconds",
			Help:      "Wall time of individual steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		resourcesManaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "resources_managed",
			Help:      "Resources live in the state record.",
		}),
	}

	registry.MustRegister(
		m.appliesStarted,
		m.appliesFinished,
		m.applyDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.resourcesManaged,
	)
	return m
}

// ObserveReport records one finished apply run.
func (m *Metrics) ObserveReport(report *engine.Report) {
	m.appliesStarted.Inc()

	outcome := "success"
	if !report.OK() {
		outcome = "failure"
	}
	m.appliesFinished.WithLabelValues(outcome).Inc()
	m.applyDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	for _, step := range report.Steps {
		m.stepsExecuted.WithLabelValues(string(step.Op), string(step.Status)).Inc()
		if step.Duration > 0 {
			m.stepDuration.WithLabelValues(string(step.Op)).Observe(step.Duration.Seconds())
		}
	}
}

// SetManagedResources updates the live-resource gauge.
func (m *Metrics) SetManagedResources(n int) {
	m.resourcesManaged.Set(float64(n))
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Timeout: 10 * time.Second,
	})
}
