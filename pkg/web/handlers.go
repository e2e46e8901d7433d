// Package web provides HTTP handlers for the production scheduling API.
package web

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"slices"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// HealthChecker reports whether a backing store can serve requests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	engine    *scheduler.Engine
	intake    *intake.Validator
	validator *validator.Validate
	store     HealthChecker
}

// NewAPIHandlers wires the handlers; store may be nil when nothing is persisted.
func NewAPIHandlers(
	engine *scheduler.Engine,
	intakeValidator *intake.Validator,
	validator *validator.Validate,
	store HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		intake:    intakeValidator,
		validator: validator,
		store:     store,
	}
}

// Routes registers every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	o := router.Group("/orders")
	o.Post("/", h.IngestOrder)
	o.Get("/:id", h.GetOrder)
	o.Get("/:id/history", h.GetOrderHistory)
	o.Post("/:id/advance", h.AdvanceOrder)
	o.Post("/:id/start", h.StartOrder)
	o.Patch("/:id/priority", h.ReprioritizeOrder)
	o.Delete("/:id", h.CancelOrder)

	d := router.Group("/departments")
	d.Get("/", h.GetDepartments)
	d.Get("/:dept/queue", h.GetQueue)
	d.Get("/:dept/attention", h.GetAttention)
	d.Post("/:dept/rerank", h.RerankQueue)

	router.Post("/reconcile", h.Reconcile)
	router.Get("/periods/:date", h.GetPeriod)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) IngestOrder(c fiber.Ctx) error {
	data, err := h.intake.Decode(c.Body())
	if err != nil {
		return handleSchedulerError(c, err)
	}

	order, err := h.engine.Ingest(c.Context(), data)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(IngestResponse{Order: order})
}

func (h *APIHandlers) GetOrder(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.Order(c.Context(), id)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) GetOrderHistory(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	history, err := h.engine.History(c.Context(), id)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(fiber.Map{
		"order_id":    id,
		"transitions": history,
	})
}

func (h *APIHandlers) AdvanceOrder(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req AdvanceRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.AdvanceStage(c.Context(), id, req.ToDepartment)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) StartOrder(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.StartWork(c.Context(), id)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) ReprioritizeOrder(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req ReprioritizeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if math.IsNaN(*req.PriorityScore) || math.IsInf(*req.PriorityScore, 0) {
		return badRequest(c, "priority_score must be a finite number")
	}

	order, err := h.engine.Reprioritize(c.Context(), id, *req.PriorityScore, req.DueDate)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) CancelOrder(c fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	reason := c.Query("reason", "cancelled")

	removed, err := h.engine.Cancel(c.Context(), id, reason)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	if removed == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(removed)
}

func (h *APIHandlers) GetDepartments(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"departments":     h.engine.Departments(),
		"max_rework_hops": h.engine.Graph().MaxReworkHops(),
	})
}

func (h *APIHandlers) GetQueue(c fiber.Ctx) error {
	dept, err := pathParam(c, "dept")
	if err != nil {
		return badRequest(c, err.Error())
	}

	snapshot, err := h.engine.SnapshotDepartment(dept)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(QueueResponse{QueueSnapshot: snapshot, Size: len(snapshot.Orders)})
}

// GetAttention lists the department's queued orders that still lack stock model
// information, in queue order.
func (h *APIHandlers) GetAttention(c fiber.Ctx) error {
	dept, err := pathParam(c, "dept")
	if err != nil {
		return badRequest(c, err.Error())
	}

	snapshot, err := h.engine.SnapshotDepartment(dept)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	snapshot.Orders = slices.DeleteFunc(snapshot.Orders, func(o *models.ProductionOrder) bool {
		return !o.NeedsInformation
	})

	return c.JSON(QueueResponse{QueueSnapshot: snapshot, Size: len(snapshot.Orders)})
}

func (h *APIHandlers) RerankQueue(c fiber.Ctx) error {
	dept, err := pathParam(c, "dept")
	if err != nil {
		return badRequest(c, err.Error())
	}

	snapshot, err := h.engine.Rerank(c.Context(), dept)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(QueueResponse{QueueSnapshot: snapshot, Size: len(snapshot.Orders)})
}

func (h *APIHandlers) Reconcile(c fiber.Ctx) error {
	var req ReconcileRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var (
		report scheduler.ReconcileReport
		err    error
	)

	if req.OrderIDs == nil {
		report, err = h.engine.ReconcileCatalog(c.Context())
	} else {
		report, err = h.engine.Reconcile(c.Context(), req.OrderIDs)
	}

	if report.Interrupted {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}

	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetPeriod(c fiber.Ctx) error {
	date, err := periodclock.ParseDate(c.Params("date"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	period, err := h.engine.Clock().PeriodOf(date)
	if err != nil {
		return handleSchedulerError(c, err)
	}

	return c.JSON(period)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "prodflow is healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if h.store != nil {
		if err := h.store.HealthCheck(c.Context()); err != nil {
			status = "unhealthy"
			message = "prodflow is unhealthy"
			httpStatus = http.StatusServiceUnavailable
			storeCheck = err.Error()
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"queues": h.engine.QueueSizes(),
	})
}

// pathParam returns the decoded route parameter. Department names and order
// ids may contain slashes, which clients send percent-encoded.
func pathParam(c fiber.Ctx, name string) (string, error) {
	value, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return "", errors.New("malformed " + name + " parameter")
	}

	if value == "" {
		return "", errors.New(name + " is required")
	}

	return value, nil
}
