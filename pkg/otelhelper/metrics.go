package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueueSizesFunc reports the current number of orders per department.
type QueueSizesFunc func() map[string]int

// Metrics holds the scheduler instruments. A nil *Metrics records nothing.
type Metrics struct {
	ingests     metric.Int64Counter
	transitions metric.Int64Counter
	reconciled  metric.Int64Counter
	failures    metric.Int64Counter
}

// NewMetrics creates the scheduler instruments on meter, or on the global
// meter provider when meter is nil. When sizes is set, a queue size gauge
// is observed from it.
func NewMetrics(meter metric.Meter, sizes QueueSizesFunc) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("prodflow")
	}

	var (
		m   Metrics
		err error
	)

	m.ingests, err = meter.Int64Counter("prodflow_orders_ingested_total",
		metric.WithDescription("Orders admitted or updated through intake"))
	if err != nil {
		return nil, err
	}

	m.transitions, err = meter.Int64Counter("prodflow_stage_transitions_total",
		metric.WithDescription("Stage transitions by kind"))
	if err != nil {
		return nil, err
	}

	m.reconciled, err = meter.Int64Counter("prodflow_reconcile_outcomes_total",
		metric.WithDescription("Reconciliation outcomes per order"))
	if err != nil {
		return nil, err
	}

	m.failures, err = meter.Int64Counter("prodflow_operation_failures_total",
		metric.WithDescription("Failed engine operations by operation"))
	if err != nil {
		return nil, err
	}

	if sizes == nil {
		return &m, nil
	}

	gauge, err := meter.Int64ObservableGauge("prodflow_queue_orders",
		metric.WithDescription("Orders currently queued per department"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for dept, n := range sizes() {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String(DepartmentKey, dept)))
		}

		return nil
	}, gauge)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metrics) RecordIngest(ctx context.Context, updated bool) {
	if m == nil {
		return
	}

	m.ingests.Add(ctx, 1, metric.WithAttributes(attribute.Bool("updated", updated)))
}

func (m *Metrics) RecordTransition(ctx context.Context, kind, from, to string) {
	if m == nil {
		return
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(TransitionKindKey, kind),
		attribute.String(FromDepartmentKey, from),
		attribute.String(ToDepartmentKey, to),
	))
}

func (m *Metrics) RecordReconcile(ctx context.Context, outcome string) {
	if m == nil {
		return
	}

	m.reconciled.Add(ctx, 1, metric.WithAttributes(attribute.String(OutcomeKey, outcome)))
}

func (m *Metrics) RecordFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}

	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
