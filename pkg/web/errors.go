package web

import (
	"errors"

	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleSchedulerError maps engine error kinds to problem responses.
func handleSchedulerError(c fiber.Ctx, err error) error {
	switch {
	case scheduler.IsValidation(err):
		return badRequest(c, err.Error())

	case scheduler.IsInvalidDate(err):
		problem := problems.NewStatusProblem(fiber.StatusBadRequest).
			WithInstance(c.Path()).
			WithType("invalid_date").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case scheduler.IsIllegalTransition(err):
		problem := problems.NewStatusProblem(fiber.StatusConflict).
			WithInstance(c.Path()).
			WithType("illegal_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case scheduler.IsNotFound(err):
		return notFound(c, err.Error())

	case scheduler.IsStoreUnavailable(err):
		problem := problems.NewStatusProblem(fiber.StatusServiceUnavailable).
			WithInstance(c.Path()).
			WithType("store_unavailable").
			WithDetail(err.Error())

		c.Set(fiber.HeaderRetryAfter, "1")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	case errors.Is(err, scheduler.ErrNoCatalog):
		problem := problems.NewStatusProblem(fiber.StatusNotImplemented).
			WithInstance(c.Path()).
			WithType("no_catalog").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotImplemented).JSON(problem)

	default:
		problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
