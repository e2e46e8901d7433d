package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/dukex/prodflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	engine   *scheduler.Engine
	intake   *intake.Validator
	store    web.HealthChecker
	validate *validator.Validate

	app *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	engine *scheduler.Engine,
	intakeValidator *intake.Validator,
	store web.HealthChecker,
) *API {
	api := &API{
		logger:   logger,
		engine:   engine,
		intake:   intakeValidator,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	api.app = api.App()

	return api
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.intake, a.validate, a.store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("prodflow")
	})

	handlers.Routes(app)

	return app
}

// Start blocks serving on port until Shutdown is called.
func (a *API) Start(port int) error {
	a.logger.Info("Starting API server", "port", port)

	return a.app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}
