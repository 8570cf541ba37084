// Package metrics provides Prometheus metrics instrumentation for the operator.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Event handling metrics
	RecordEvent(ctx context.Context, eventType string)
	RecordHandlerError(ctx context.Context, eventType string)

	// Reconcile metrics
	RecordReconcileDuration(ctx context.Context, status string, duration time.Duration)
	RecordResourceOp(ctx context.Context, kind, op string)
	RecordValidationFailure(ctx context.Context, missingFields int)

	// Kubernetes API metrics
	RecordAPIError(ctx context.Context, verb, errorType string)

	// Leadership
	SetLeader(ctx context.Context, leading bool)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	eventsTotal        *prometheus.CounterVec
	handlerErrorsTotal *prometheus.CounterVec

	reconcileDuration       *prometheus.HistogramVec
	resourceOpsTotal        *prometheus.CounterVec
	validationFailures      prometheus.Counter
	validationMissingFields prometheus.Gauge

	apiErrorsTotal *prometheus.CounterVec

	leader prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initEventMetrics()
	c.initReconcileMetrics()
	c.initAPIMetrics()
	c.register(reg)

	return c
}

// RecordEvent counts a dispatched event by type.
func (c *prometheusCollector) RecordEvent(_ context.Context, eventType string) {
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

// RecordHandlerError counts a handler failure by event type.
func (c *prometheusCollector) RecordHandlerError(_ context.Context, eventType string) {
	c.handlerErrorsTotal.WithLabelValues(eventType).Inc()
}

// RecordReconcileDuration records the duration of a reconcile pass.
func (c *prometheusCollector) RecordReconcileDuration(_ context.Context, status string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordResourceOp counts a cluster mutation by resource kind and operation.
func (c *prometheusCollector) RecordResourceOp(_ context.Context, kind, op string) {
	c.resourceOpsTotal.WithLabelValues(kind, op).Inc()
}

// RecordValidationFailure counts a rejected relation payload.
func (c *prometheusCollector) RecordValidationFailure(_ context.Context, missingFields int) {
	c.validationFailures.Inc()
	c.validationMissingFields.Set(float64(missingFields))
}

// RecordAPIError counts a Kubernetes API error by verb and classified type.
func (c *prometheusCollector) RecordAPIError(_ context.Context, verb, errorType string) {
	c.apiErrorsTotal.WithLabelValues(verb, errorType).Inc()
}

// SetLeader reflects the current leadership state (1 when leading).
func (c *prometheusCollector) SetLeader(_ context.Context, leading bool) {
	if leading {
		c.leader.Set(1)
	} else {
		c.leader.Set(0)
	}
}

func (c *prometheusCollector) initEventMetrics() {
	c.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_operator_events_total",
			Help: "Total events handled by type",
		},
		[]string{"type"},
	)
	c.handlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_operator_handler_errors_total",
			Help: "Total event handler failures by event type",
		},
		[]string{"type"},
	)
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingress_operator_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes against the cluster",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	c.resourceOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_operator_resource_ops_total",
			Help: "Total cluster resource mutations by kind and operation",
		},
		[]string{"kind", "op"},
	)
	c.validationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingress_operator_validation_failures_total",
			Help: "Total relation payloads rejected for missing fields",
		},
	)
	c.validationMissingFields = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingress_operator_validation_missing_fields",
			Help: "Missing required fields in the last rejected payload",
		},
	)
}

func (c *prometheusCollector) initAPIMetrics() {
	c.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_operator_kube_api_errors_total",
			Help: "Total Kubernetes API errors by verb and type",
		},
		[]string{"verb", "error_type"},
	)
	c.leader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingress_operator_leader",
			Help: "Whether this instance currently holds leadership (1) or not (0)",
		},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.eventsTotal,
		c.handlerErrorsTotal,
		c.reconcileDuration,
		c.resourceOpsTotal,
		c.validationFailures,
		c.validationMissingFields,
		c.apiErrorsTotal,
		c.leader,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordEvent is a no-op.
func (c *NoopCollector) RecordEvent(_ context.Context, _ string) {}

// RecordHandlerError is a no-op.
func (c *NoopCollector) RecordHandlerError(_ context.Context, _ string) {}

// RecordReconcileDuration is a no-op.
func (c *NoopCollector) RecordReconcileDuration(_ context.Context, _ string, _ time.Duration) {}

// RecordResourceOp is a no-op.
func (c *NoopCollector) RecordResourceOp(_ context.Context, _, _ string) {}

// RecordValidationFailure is a no-op.
func (c *NoopCollector) RecordValidationFailure(_ context.Context, _ int) {}

// RecordAPIError is a no-op.
func (c *NoopCollector) RecordAPIError(_ context.Context, _, _ string) {}

// SetLeader is a no-op.
func (c *NoopCollector) SetLeader(_ context.Context, _ bool) {}
