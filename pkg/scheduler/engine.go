// Package scheduler coordinates intake, ranking and stage advances of production
// orders over the department queues.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dukex/prodflow/pkg/departments"
	"github.com/dukex/prodflow/pkg/eventbus"
	"github.com/dukex/prodflow/pkg/events"
	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/otelhelper"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/persistence"
	"github.com/dukex/prodflow/pkg/priority"
	"github.com/dukex/prodflow/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxReworkCycles bounds how many rework edges one order may take.
const DefaultMaxReworkCycles = 3

// raceAttempts bounds how often an operation re-reads an order that another
// writer moved between the read and the locked write.
const raceAttempts = 3

// Catalog is the pull interface to the originating order system.
type Catalog interface {
	OrderIDs(ctx context.Context) ([]string, error)
	Order(ctx context.Context, orderID string) (*models.OrderData, error)
}

type Config struct {
	Clock       *periodclock.Clock
	Graph       *departments.Graph
	Persistence persistence.Persistence
	Publisher   eventbus.EventPublisher
	Catalog     Catalog
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Metrics     *otelhelper.Metrics

	MaxReworkCycles int
	Now             func() time.Time
}

type Engine struct {
	clock       *periodclock.Clock
	graph       *departments.Graph
	store       *queue.Store
	validator   *intake.Validator
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	catalog     Catalog
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *otelhelper.Metrics
	maxRework   int
	now         func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Clock == nil {
		return nil, errors.New("scheduler requires a period clock")
	}

	if cfg.Graph == nil {
		cfg.Graph = departments.Default()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.Tracer("prodflow/scheduler")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch {
	case cfg.MaxReworkCycles == 0:
		cfg.MaxReworkCycles = DefaultMaxReworkCycles
	case cfg.MaxReworkCycles < 0:
		return nil, fmt.Errorf("max rework cycles must not be negative, got %d", cfg.MaxReworkCycles)
	}

	validator, err := intake.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to build intake validator: %w", err)
	}

	var committer queue.Committer
	if cfg.Persistence != nil {
		committer = queue.CommitterFunc(cfg.Persistence.Apply)
	}

	return &Engine{
		clock:       cfg.Clock,
		graph:       cfg.Graph,
		store:       queue.New(cfg.Graph, committer, cfg.Logger),
		validator:   validator,
		persistence: cfg.Persistence,
		publisher:   cfg.Publisher,
		catalog:     cfg.Catalog,
		logger:      cfg.Logger.With("module", "scheduler"),
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
		maxRework:   cfg.MaxReworkCycles,
		now:         cfg.Now,
	}, nil
}

func (e *Engine) Graph() *departments.Graph {
	return e.graph
}

func (e *Engine) Clock() *periodclock.Clock {
	return e.clock
}

// QueueSizes reports the number of queued orders per department.
func (e *Engine) QueueSizes() map[string]int {
	return e.store.Sizes()
}

// Department describes one stage of the pipeline and its current load.
type Department struct {
	Name      string           `json:"name"`
	Ordinal   int              `json:"ordinal"`
	Terminal  bool             `json:"terminal"`
	QueueSize int              `json:"queue_size"`
	Edges     []DepartmentEdge `json:"edges"`
}

type DepartmentEdge struct {
	To   string `json:"to"`
	Kind string `json:"kind"`
	When string `json:"when,omitempty"`
}

// Departments lists the stages in pipeline order with their outgoing edges.
func (e *Engine) Departments() []Department {
	sizes := e.store.Sizes()
	stages := e.graph.Stages()

	out := make([]Department, 0, len(stages))

	for _, stage := range stages {
		edges := e.graph.Edges(stage.ID)
		dept := Department{
			Name:      stage.Name,
			Ordinal:   int(stage.ID),
			Terminal:  e.graph.IsTerminal(stage.ID),
			QueueSize: sizes[stage.Name],
			Edges:     make([]DepartmentEdge, 0, len(edges)),
		}

		for _, edge := range edges {
			dept.Edges = append(dept.Edges, DepartmentEdge{
				To:   e.graph.Name(edge.To),
				Kind: string(edge.Kind),
				When: edge.When.String(),
			})
		}

		out = append(out, dept)
	}

	return out
}

// Ingest validates an upstream record, stamps its period and places it in the
// entry department. A record for an order already queued updates that order in
// place, wherever it is, and re-ranks its queue.
func (e *Engine) Ingest(ctx context.Context, data models.OrderData) (*models.ProductionOrder, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.ingest",
		attribute.String(otelhelper.OrderIDKey, data.OrderID))
	defer span.End()

	order, updated, err := e.ingest(ctx, data)
	if err != nil {
		return nil, e.fail(ctx, span, "ingest", err)
	}

	span.SetAttributes(attribute.Int(otelhelper.PeriodIndexKey, order.PeriodIndex))
	e.metrics.RecordIngest(ctx, updated)

	e.logger.InfoContext(ctx, "Order ingested",
		"order_id", order.OrderID,
		"department", order.CurrentDepartment,
		"period_index", order.PeriodIndex,
		"updated", updated)

	e.publish(ctx, order.OrderID, events.OrderIngested{
		BaseEvent: events.NewBaseEvent(events.OrderIngestedEvent, order.OrderID),
		Order:     order,
		Updated:   updated,
	})
	e.publishQueue(ctx, order.CurrentDepartment)

	return order, nil
}

func (e *Engine) ingest(ctx context.Context, data models.OrderData) (*models.ProductionOrder, bool, error) {
	data, err := e.validator.Normalize(data)
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	today := periodclock.DateOf(now)

	period, err := e.periodFor(data.DueDate, today)
	if err != nil {
		return nil, false, err
	}

	stamp := func(o *models.ProductionOrder, period periodclock.Period) {
		o.Customer = data.Customer
		o.Product = data.Product
		o.Quantity = data.Quantity
		o.PriorityScore = data.PriorityScore
		o.DueDate = cloneDate(data.DueDate)
		o.StockModel = data.SpecRef
		o.Flags = slices.Clone(data.Flags)
		o.PeriodIndex = period.Index
		o.PeriodCode = period.Code
		o.Urgency = priority.Classify(o, today)
		o.NeedsInformation = priority.NeedsInformation(o)
		o.UpdatedAt = now
	}

	for range raceAttempts {
		if _, queued := e.store.Lookup(data.OrderID); queued {
			updated, err := e.store.Update(ctx, data.OrderID, "", func(o *models.ProductionOrder) error {
				stamped := period

				// Without a due date the period stays anchored to the first intake.
				if data.DueDate == nil && !o.CreatedAt.IsZero() {
					var err error

					stamped, err = e.periodFor(nil, periodclock.DateOf(o.CreatedAt))
					if err != nil {
						return err
					}
				}

				stamp(o, stamped)

				return nil
			})
			if queue.IsNotFound(err) {
				continue
			}

			if err != nil {
				return nil, false, err
			}

			return updated, true, nil
		}

		if err := e.checkArchived(ctx, data.OrderID); err != nil {
			return nil, false, err
		}

		order := &models.ProductionOrder{
			OrderID:           data.OrderID,
			CurrentDepartment: e.graph.Name(e.graph.Entry()),
			State:             models.OrderStateQueued,
			EnqueuedAt:        now,
			CreatedAt:         now,
		}
		stamp(order, period)

		err := e.store.Upsert(ctx, order)
		if queue.IsNotInDepartment(err) {
			continue
		}

		if err != nil {
			return nil, false, err
		}

		return order.Clone(), false, nil
	}

	return nil, false, raceExhausted("ingest", data.OrderID)
}

// checkArchived refuses to bring back an order that already left the pipeline
// as completed. Cancelled orders may be admitted again.
func (e *Engine) checkArchived(ctx context.Context, orderID string) error {
	if e.persistence == nil {
		return nil
	}

	archived, err := e.persistence.OrderByID(ctx, orderID)
	if persistence.IsOrderNotFound(err) {
		return nil
	}

	if err != nil {
		return storeUnavailable("ingest", orderID, err)
	}

	if archived.State == models.OrderStateCompleted {
		return intake.Invalid(orderID, "order_id", "order already completed the pipeline")
	}

	return nil
}

// AdvanceStage moves the order to requested, or along its default route when
// requested is empty. Advancing from the final stage without a request
// completes the order and removes it from the pipeline.
func (e *Engine) AdvanceStage(ctx context.Context, orderID, requested string) (*models.ProductionOrder, error) {
	requested = strings.TrimSpace(requested)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.advance_stage",
		attribute.String(otelhelper.OrderIDKey, orderID),
		attribute.String(otelhelper.ToDepartmentKey, requested))
	defer span.End()

	order, transition, err := e.advance(ctx, orderID, requested)
	if err != nil {
		return nil, e.fail(ctx, span, "advance_stage", err)
	}

	span.SetAttributes(attribute.String(otelhelper.TransitionKindKey, string(transition.Kind)))
	e.metrics.RecordTransition(ctx, string(transition.Kind), transition.FromDepartment, transition.ToDepartment)

	e.logger.InfoContext(ctx, "Order advanced",
		"order_id", orderID,
		"from", transition.FromDepartment,
		"to", transition.ToDepartment,
		"kind", transition.Kind)

	e.publish(ctx, orderID, events.StageTransitioned{
		BaseEvent:  events.NewBaseEvent(events.StageTransitionedEvent, orderID),
		Transition: transition,
	})

	if transition.Kind == models.TransitionComplete {
		e.publishRemoved(ctx, order, transition.FromDepartment, "completed")
	}

	e.publishQueue(ctx, transition.FromDepartment)

	if transition.ToDepartment != "" {
		e.publishQueue(ctx, transition.ToDepartment)
	}

	return order, nil
}

func (e *Engine) advance(ctx context.Context, orderID, requested string) (*models.ProductionOrder, models.StageTransition, error) {
	for range raceAttempts {
		current, ok := e.store.Lookup(orderID)
		if !ok {
			return nil, models.StageTransition{}, notFound("advance_stage", orderID)
		}

		from, _ := e.graph.Lookup(current.CurrentDepartment)
		at := e.now()

		if requested == "" && e.graph.IsTerminal(from) {
			final, err := e.store.Remove(ctx, queue.Removal{
				OrderID:    orderID,
				Department: current.CurrentDepartment,
				State:      models.OrderStateCompleted,
				Kind:       models.TransitionComplete,
				Reason:     "completed",
				At:         at,
			})
			if queue.IsNotInDepartment(err) {
				continue
			}

			if err != nil {
				return nil, models.StageTransition{}, err
			}

			return final, models.StageTransition{
				OrderID:        orderID,
				FromDepartment: current.CurrentDepartment,
				Kind:           models.TransitionComplete,
				At:             at,
			}, nil
		}

		to, kind, err := e.target(current, from, requested)
		if err != nil {
			return nil, models.StageTransition{}, err
		}

		moved, err := e.store.MoveStage(ctx, queue.Move{
			OrderID: orderID,
			From:    current.CurrentDepartment,
			To:      e.graph.Name(to),
			Kind:    kind.TransitionKind(),
			At:      at,
			Mutate: func(o *models.ProductionOrder) error {
				return e.enter(o, kind, e.graph.Name(to))
			},
		})
		if queue.IsNotInDepartment(err) {
			continue
		}

		if err != nil {
			return nil, models.StageTransition{}, err
		}

		return moved, models.StageTransition{
			OrderID:        orderID,
			FromDepartment: current.CurrentDepartment,
			ToDepartment:   moved.CurrentDepartment,
			Kind:           kind.TransitionKind(),
			At:             at,
		}, nil
	}

	return nil, models.StageTransition{}, raceExhausted("advance_stage", orderID)
}

func (e *Engine) target(
	current *models.ProductionOrder,
	from departments.StageID,
	requested string,
) (departments.StageID, departments.EdgeKind, error) {
	if requested == "" {
		to, kind, ok := e.graph.Route(from, current)
		if !ok {
			return departments.NoStage, "", &IllegalTransitionError{
				From:   current.CurrentDepartment,
				Reason: "no forward stage",
			}
		}

		return to, kind, nil
	}

	_, to, kind, err := e.graph.ValidateNames(current.CurrentDepartment, requested)

	return to, kind, err
}

// enter sets the state an order has on arrival over an edge of kind. It runs
// under the queue locks, so the rework checks see the latest state.
func (e *Engine) enter(o *models.ProductionOrder, kind departments.EdgeKind, to string) error {
	if kind != departments.EdgeRework {
		o.State = models.OrderStateQueued

		return nil
	}

	if o.State != models.OrderStateInProgress {
		return &IllegalTransitionError{
			From:   o.CurrentDepartment,
			To:     to,
			Reason: "rework requires the order to be in progress",
		}
	}

	if o.ReworkCount >= e.maxRework {
		return &IllegalTransitionError{
			From:   o.CurrentDepartment,
			To:     to,
			Reason: fmt.Sprintf("order already took %d rework cycles", o.ReworkCount),
		}
	}

	o.ReworkCount++
	o.State = models.OrderStateReworked

	return nil
}

// Reprioritize changes the order's score and, when dueDate is set, its due
// date and period. The order stays in its department.
func (e *Engine) Reprioritize(
	ctx context.Context,
	orderID string,
	score float64,
	dueDate *periodclock.Date,
) (*models.ProductionOrder, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.reprioritize",
		attribute.String(otelhelper.OrderIDKey, orderID))
	defer span.End()

	order, err := e.reprioritize(ctx, orderID, score, dueDate)
	if err != nil {
		return nil, e.fail(ctx, span, "reprioritize", err)
	}

	e.logger.InfoContext(ctx, "Order reprioritized",
		"order_id", orderID,
		"priority_score", score,
		"period_index", order.PeriodIndex)

	event := events.OrderReprioritized{
		BaseEvent:     events.NewBaseEvent(events.OrderReprioritizedEvent, orderID),
		PriorityScore: order.PriorityScore,
		PeriodIndex:   order.PeriodIndex,
		Department:    order.CurrentDepartment,
	}
	if order.DueDate != nil {
		event.DueDate = order.DueDate.String()
	}

	e.publish(ctx, orderID, event)
	e.publishQueue(ctx, order.CurrentDepartment)

	return order, nil
}

func (e *Engine) reprioritize(
	ctx context.Context,
	orderID string,
	score float64,
	dueDate *periodclock.Date,
) (*models.ProductionOrder, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, intake.Invalid(orderID, "priority_score", "must be a finite number")
	}

	now := e.now()
	today := periodclock.DateOf(now)

	var period periodclock.Period

	if dueDate != nil {
		var err error

		period, err = e.clock.PeriodOf(*dueDate)
		if err != nil {
			return nil, err
		}
	}

	return e.store.Update(ctx, orderID, "", func(o *models.ProductionOrder) error {
		o.PriorityScore = score

		if dueDate != nil {
			o.DueDate = cloneDate(dueDate)
			o.PeriodIndex = period.Index
			o.PeriodCode = period.Code
		}

		o.Urgency = priority.Classify(o, today)
		o.UpdatedAt = now

		return nil
	})
}

// StartWork marks a waiting order as being worked in its current department.
func (e *Engine) StartWork(ctx context.Context, orderID string) (*models.ProductionOrder, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.start_work",
		attribute.String(otelhelper.OrderIDKey, orderID))
	defer span.End()

	now := e.now()

	order, err := e.store.Update(ctx, orderID, "", func(o *models.ProductionOrder) error {
		if !o.State.Waiting() {
			return &IllegalTransitionError{
				From:   o.CurrentDepartment,
				To:     o.CurrentDepartment,
				Reason: fmt.Sprintf("order is %s, not waiting", o.State),
			}
		}

		o.State = models.OrderStateInProgress
		o.UpdatedAt = now

		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, span, "start_work", err)
	}

	e.logger.InfoContext(ctx, "Order work started", "order_id", orderID, "department", order.CurrentDepartment)
	e.publishQueue(ctx, order.CurrentDepartment)

	return order, nil
}

// Cancel removes the order from the pipeline. Cancelling an order no queue
// holds is a no-op and returns nil, nil.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) (*models.ProductionOrder, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "scheduler.cancel",
		attribute.String(otelhelper.OrderIDKey, orderID))
	defer span.End()

	removed, err := e.remove(ctx, orderID, reason)
	if err != nil {
		return nil, e.fail(ctx, span, "cancel", err)
	}

	return removed, nil
}

func (e *Engine) remove(ctx context.Context, orderID, reason string) (*models.ProductionOrder, error) {
	at := e.now()

	removed, err := e.store.Remove(ctx, queue.Removal{
		OrderID: orderID,
		State:   models.OrderStateCancelled,
		Kind:    models.TransitionCancel,
		Reason:  reason,
		At:      at,
	})
	if err != nil || removed == nil {
		return nil, err
	}

	transition := models.StageTransition{
		OrderID:        orderID,
		FromDepartment: removed.CurrentDepartment,
		Kind:           models.TransitionCancel,
		At:             at,
	}

	e.metrics.RecordTransition(ctx, string(transition.Kind), transition.FromDepartment, "")
	e.logger.InfoContext(ctx, "Order removed", "order_id", orderID, "department", removed.CurrentDepartment, "reason", reason)

	e.publish(ctx, orderID, events.StageTransitioned{
		BaseEvent:  events.NewBaseEvent(events.StageTransitionedEvent, orderID),
		Transition: transition,
	})
	e.publishRemoved(ctx, removed, removed.CurrentDepartment, reason)
	e.publishQueue(ctx, removed.CurrentDepartment)

	return removed, nil
}

// Order returns the current state of an order, queued or archived.
func (e *Engine) Order(ctx context.Context, orderID string) (*models.ProductionOrder, error) {
	if order, ok := e.store.Lookup(orderID); ok {
		order.Urgency = priority.Classify(order, periodclock.DateOf(e.now()))

		return order, nil
	}

	if e.persistence == nil {
		return nil, notFound("order", orderID)
	}

	order, err := e.persistence.OrderByID(ctx, orderID)
	if persistence.IsOrderNotFound(err) {
		return nil, notFound("order", orderID)
	}

	if err != nil {
		return nil, storeUnavailable("order", orderID, err)
	}

	return order, nil
}

// History returns the recorded stage transitions of an order, oldest first.
func (e *Engine) History(ctx context.Context, orderID string) ([]models.StageTransition, error) {
	if _, err := e.Order(ctx, orderID); err != nil {
		return nil, err
	}

	if e.persistence == nil {
		return []models.StageTransition{}, nil
	}

	transitions, err := e.persistence.Transitions(ctx, orderID)
	if err != nil {
		return nil, storeUnavailable("history", orderID, err)
	}

	return transitions, nil
}

// SnapshotDepartment returns a ranked point-in-time copy of one queue.
func (e *Engine) SnapshotDepartment(dept string) (models.QueueSnapshot, error) {
	snapshot, err := e.store.Snapshot(dept)
	if err != nil {
		return models.QueueSnapshot{}, err
	}

	today := periodclock.DateOf(e.now())
	for _, o := range snapshot.Orders {
		o.Urgency = priority.Classify(o, today)
	}

	return snapshot, nil
}

// Rerank re-sorts one department queue on request.
func (e *Engine) Rerank(ctx context.Context, dept string) (models.QueueSnapshot, error) {
	changed, err := e.store.Rerank(dept)
	if err != nil {
		return models.QueueSnapshot{}, err
	}

	if changed {
		e.publishQueue(ctx, dept)
	}

	return e.SnapshotDepartment(dept)
}

// Restore reloads the active orders kept by persistence. It must run before
// the engine serves requests.
func (e *Engine) Restore(ctx context.Context) error {
	if e.persistence == nil {
		return nil
	}

	orders, err := e.persistence.ActiveOrders(ctx)
	if err != nil {
		return storeUnavailable("restore", "", err)
	}

	if err := e.store.Restore(orders); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Restored active orders", "count", len(orders))

	return nil
}

func (e *Engine) periodFor(dueDate *periodclock.Date, today periodclock.Date) (periodclock.Period, error) {
	if dueDate != nil {
		return e.clock.PeriodOf(*dueDate)
	}

	return e.clock.PeriodOf(today)
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"key", key,
			"error", err)
	}
}

func (e *Engine) publishQueue(ctx context.Context, dept string) {
	if e.publisher == nil {
		return
	}

	snapshot, err := e.store.Snapshot(dept)
	if err != nil {
		return
	}

	e.publish(ctx, dept, events.NewQueueChanged(snapshot))
}

func (e *Engine) publishRemoved(ctx context.Context, order *models.ProductionOrder, dept, reason string) {
	e.publish(ctx, order.OrderID, events.OrderRemoved{
		BaseEvent:  events.NewBaseEvent(events.OrderRemovedEvent, order.OrderID),
		Department: dept,
		State:      order.State,
		Reason:     reason,
	})
}

func (e *Engine) fail(ctx context.Context, span trace.Span, op string, err error) error {
	otelhelper.SetError(span, err, attribute.String(otelhelper.OperationKey, op))
	e.metrics.RecordFailure(ctx, op)

	if IsStoreUnavailable(err) {
		e.logger.ErrorContext(ctx, "Operation failed", "operation", op, "error", err)
	} else {
		e.logger.DebugContext(ctx, "Operation rejected", "operation", op, "error", err)
	}

	return err
}

func notFound(op, orderID string) error {
	return &queue.OrderError{Op: op, OrderID: orderID, Err: ErrNotFound}
}

func storeUnavailable(op, orderID string, cause error) error {
	return &queue.OrderError{Op: op, OrderID: orderID, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)}
}

func raceExhausted(op, orderID string) error {
	return storeUnavailable(op, orderID, fmt.Errorf("order changed concurrently %d times", raceAttempts))
}

func cloneDate(d *periodclock.Date) *periodclock.Date {
	if d == nil {
		return nil
	}

	clone := *d

	return &clone
}
