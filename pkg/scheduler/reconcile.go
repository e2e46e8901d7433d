package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is what reconciliation did with one order.
type Outcome string

const (
	OutcomeRemoved    Outcome = "removed"
	OutcomeReadmitted Outcome = "readmitted"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

type OrderOutcome struct {
	OrderID string  `json:"order_id"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// ReconcileReport lists one outcome per order that needed attention. Orders
// present both locally and upstream are only counted.
type ReconcileReport struct {
	Outcomes    []OrderOutcome `json:"outcomes"`
	Kept        int            `json:"kept"`
	Interrupted bool           `json:"interrupted"`
}

// Count returns how many orders ended with outcome.
func (r ReconcileReport) Count(outcome Outcome) int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}

	return n
}

var ErrNoCatalog = errors.New("no order catalog configured")

// Reconcile aligns the queues with the authoritative set of upstream order ids.
// Queued orders missing from ids are removed; ids with no queued order are
// re-admitted through the catalog unless they already completed here. Each
// order is handled atomically and ctx is checked between orders; when ctx ends
// the partial report is returned with ctx's error.
func (e *Engine) Reconcile(ctx context.Context, ids []string) (ReconcileReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.reconcile",
		attribute.Int(otelhelper.OrderCountKey, len(ids)))
	defer span.End()

	report := ReconcileReport{Outcomes: []OrderOutcome{}}

	authoritative := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			report.add(OrderOutcome{Outcome: OutcomeFailed, Detail: "empty order id"})

			continue
		}

		authoritative[id] = struct{}{}
	}

	local := e.store.OrderIDs()

	for _, id := range local {
		if _, ok := authoritative[id]; ok {
			report.Kept++

			continue
		}

		if err := ctx.Err(); err != nil {
			return e.interrupted(ctx, span, report, err)
		}

		report.add(e.reconcileRemove(ctx, id))
	}

	upstream := make([]string, 0, len(authoritative))
	for id := range authoritative {
		if _, found := slices.BinarySearch(local, id); !found {
			upstream = append(upstream, id)
		}
	}

	slices.Sort(upstream)

	for _, id := range upstream {
		if err := ctx.Err(); err != nil {
			return e.interrupted(ctx, span, report, err)
		}

		report.add(e.reconcileReadmit(ctx, id))
	}

	for _, o := range report.Outcomes {
		e.metrics.RecordReconcile(ctx, string(o.Outcome))
	}

	e.logger.InfoContext(ctx, "Reconciliation finished",
		"kept", report.Kept,
		"removed", report.Count(OutcomeRemoved),
		"readmitted", report.Count(OutcomeReadmitted),
		"skipped", report.Count(OutcomeSkipped),
		"failed", report.Count(OutcomeFailed))

	return report, nil
}

// ReconcileCatalog reconciles against the ids the catalog currently lists.
func (e *Engine) ReconcileCatalog(ctx context.Context) (ReconcileReport, error) {
	if e.catalog == nil {
		return ReconcileReport{}, ErrNoCatalog
	}

	ids, err := e.catalog.OrderIDs(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("failed to list upstream orders: %w", err)
	}

	return e.Reconcile(ctx, ids)
}

func (e *Engine) reconcileRemove(ctx context.Context, orderID string) OrderOutcome {
	removed, err := e.remove(ctx, orderID, "absent upstream")

	switch {
	case err != nil:
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: err.Error()}
	case removed == nil:
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeSkipped, Detail: "already gone"}
	default:
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeRemoved}
	}
}

func (e *Engine) reconcileReadmit(ctx context.Context, orderID string) OrderOutcome {
	if _, queued := e.store.Lookup(orderID); queued {
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeSkipped, Detail: "admitted meanwhile"}
	}

	if e.persistence != nil {
		archived, err := e.persistence.OrderByID(ctx, orderID)
		if err == nil && archived.State == models.OrderStateCompleted {
			return OrderOutcome{OrderID: orderID, Outcome: OutcomeSkipped, Detail: "completed"}
		}
	}

	if e.catalog == nil {
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: ErrNoCatalog.Error()}
	}

	data, err := e.catalog.Order(ctx, orderID)
	if err != nil {
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	if data == nil {
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: "catalog returned no record"}
	}

	if data.OrderID != "" && strings.TrimSpace(data.OrderID) != orderID {
		detail := intake.Invalid(orderID, "order_id", "catalog returned "+data.OrderID).Error()

		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: detail}
	}

	record := *data
	record.OrderID = orderID

	if _, err := e.Ingest(ctx, record); err != nil {
		return OrderOutcome{OrderID: orderID, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	return OrderOutcome{OrderID: orderID, Outcome: OutcomeReadmitted}
}

func (e *Engine) interrupted(ctx context.Context, span trace.Span, report ReconcileReport, err error) (ReconcileReport, error) {
	report.Interrupted = true

	otelhelper.SetError(span, err)

	e.logger.WarnContext(ctx, "Reconciliation interrupted", "handled", len(report.Outcomes), "error", err)

	return report, err
}

func (r *ReconcileReport) add(o OrderOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}
