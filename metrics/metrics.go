package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"remanflow/domain"
)

const namespace = "remanflow"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	service  string
	registry *prometheus.Registry

	PipelinesTotal     *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
	StepDuration       *prometheus.HistogramVec
	StrategiesProduced *prometheus.CounterVec
	PlanTransitions    *prometheus.CounterVec
	StepsCompleted     *prometheus.CounterVec
	OutboxPublished    prometheus.Counter
	OutboxPending      prometheus.Gauge
	BreakerState       *prometheus.GaugeVec
	BreakerTrips       *prometheus.CounterVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"service": service}
	m := &Metrics{service: service, registry: registry}

	m.PipelinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pipelines_total",
			Help:        "Optimization pipelines finished, by outcome",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)

	// Selection waits up to ten minutes for the customer.
	m.PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "pipeline_duration_seconds",
			Help:        "End-to-end pipeline duration in seconds",
			Buckets:     []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)

	m.StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "pipeline_step_duration_seconds",
			Help:        "Pipeline step duration in seconds",
			Buckets:     []float64{.001, .01, .05, .1, .5, 1, 5, 10, 60, 600},
			ConstLabels: constLabels,
		},
		[]string{"step", "status"},
	)

	m.StrategiesProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "strategies_produced_total",
			Help:        "Strategies produced by the optimizer, by priority",
			ConstLabels: constLabels,
		},
		[]string{"priority"},
	)

	m.PlanTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "plan_transitions_total",
			Help:        "Plan status transitions, by target status",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	m.StepsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "plan_steps_completed_total",
			Help:        "Executed plan steps, by process",
			ConstLabels: constLabels,
		},
		[]string{"process"},
	)

	m.OutboxPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "outbox_published_total",
			Help:        "Outbox messages delivered to the broker",
			ConstLabels: constLabels,
		},
	)

	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "outbox_pending",
			Help:        "Outbox messages waiting for delivery",
			ConstLabels: constLabels,
		},
	)

	m.BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "provider_breaker_state",
			Help:        "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
			ConstLabels: constLabels,
		},
		[]string{"provider"},
	)

	m.BreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "provider_breaker_trips_total",
			Help:        "Provider circuit breaker trips",
			ConstLabels: constLabels,
		},
		[]string{"provider"},
	)

	registry.MustRegister(
		m.PipelinesTotal,
		m.PipelineDuration,
		m.StepDuration,
		m.StrategiesProduced,
		m.PlanTransitions,
		m.StepsCompleted,
		m.OutboxPublished,
		m.OutboxPending,
		m.BreakerState,
		m.BreakerTrips,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStep matches pipeline.StepObserver.
func (m *Metrics) ObserveStep(step string, elapsed time.Duration, err error) {
	m.StepDuration.WithLabelValues(step, status(err)).Observe(elapsed.Seconds())
}

// RecordPipeline counts a finished pipeline under outcome.
func (m *Metrics) RecordPipeline(outcome string, elapsed time.Duration) {
	m.PipelinesTotal.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordStrategies(strategies []domain.Strategy) {
	for _, s := range strategies {
		m.StrategiesProduced.WithLabelValues(s.Priority.String()).Inc()
	}
}

func (m *Metrics) RecordPlanTransition(status domain.PlanStatus) {
	m.PlanTransitions.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) RecordStepCompleted(process domain.ProcessType) {
	m.StepsCompleted.WithLabelValues(process.String()).Inc()
}

func (m *Metrics) RecordOutboxPublished() { m.OutboxPublished.Inc() }

func (m *Metrics) SetOutboxPending(n int) { m.OutboxPending.Set(float64(n)) }

// ObserveBreaker matches pipeline.BreakerObserver.
func (m *Metrics) ObserveBreaker(providerID string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
		m.BreakerTrips.WithLabelValues(providerID).Inc()
	}
	m.BreakerState.WithLabelValues(providerID).Set(v)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
