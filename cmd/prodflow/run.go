package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/prodflow/pkg/cmd"
	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/log"
	"github.com/dukex/prodflow/pkg/otelhelper"
	"github.com/dukex/prodflow/pkg/reconciler"
	"github.com/dukex/prodflow/pkg/scheduler"
	filesource "github.com/dukex/prodflow/pkg/sources/file"
	redissource "github.com/dukex/prodflow/pkg/sources/redis"
	goredis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func NewRunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (file://path or postgres://...)",
			Value:   "file://./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma-separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the upstream order system; intake feed and catalog are disabled when empty",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "intake-queue",
			Usage:   "Redis list upstream order records are pushed onto",
			Sources: cli.EnvVars("PRODFLOW_INTAKE_QUEUE"),
		},
		&cli.StringFlag{
			Name:    "catalog-key",
			Usage:   "Redis hash holding every open upstream order",
			Sources: cli.EnvVars("PRODFLOW_CATALOG_KEY"),
		},
		&cli.StringFlag{
			Name:    "catalog-file",
			Usage:   "JSON file of open upstream orders, used when no Redis URL is set",
			Sources: cli.EnvVars("PRODFLOW_CATALOG_FILE"),
		},
		&cli.StringFlag{
			Name:    "reconcile-schedule",
			Usage:   "Cron schedule for catalog reconciliation",
			Value:   reconciler.DefaultSchedule,
			Sources: cli.EnvVars("PRODFLOW_RECONCILE_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "reconcile-timeout",
			Usage:   "Upper bound for one reconciliation pass",
			Value:   2 * time.Minute,
			Sources: cli.EnvVars("PRODFLOW_RECONCILE_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-rework-cycles",
			Usage:   "Rework edges an order may take before further reworks are refused",
			Value:   scheduler.DefaultMaxReworkCycles,
			Sources: cli.EnvVars("PRODFLOW_MAX_REWORK_CYCLES"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("PRODFLOW_TRACING"),
		},
		departmentsFileFlag(),
		logLevelFlag(),
	}

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the scheduling API, intake feed and reconciler",
		Flags:   append(flags, clockFlags()...),
		Action:  run,
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("prodflow")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing prodflow")

	clock, err := newClock(command)
	if err != nil {
		return err
	}

	graph, err := loadGraph(command.String("departments-file"))
	if err != nil {
		return err
	}

	tracer := otelhelper.Tracer("prodflow")

	if command.Bool("tracing") {
		var shutdownTracer func(context.Context) error

		tracer, shutdownTracer, err = otelhelper.NewTracer(ctx, "prodflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			err := shutdownTracer(context.WithoutCancel(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(cmd.EventBusConfig{
		Provider:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
	}, logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	intakeValidator, err := intake.NewValidator()
	if err != nil {
		return err
	}

	src, err := newUpstream(ctx, command, intakeValidator, logger)
	if err != nil {
		return err
	}
	defer src.close(logger)

	var engine *scheduler.Engine

	metrics, err := otelhelper.NewMetrics(nil, func() map[string]int {
		if engine == nil {
			return nil
		}

		return engine.QueueSizes()
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	engine, err = scheduler.New(scheduler.Config{
		Clock:           clock,
		Graph:           graph,
		Persistence:     persistence,
		Publisher:       eventBus,
		Catalog:         src.catalog,
		Logger:          logger,
		Tracer:          tracer,
		Metrics:         metrics,
		MaxReworkCycles: command.Int("max-rework-cycles"),
	})
	if err != nil {
		return err
	}

	err = engine.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore queues: %w", err)
	}

	if src.client != nil {
		feed := redissource.NewFeed(src.client, src.config, intakeValidator, engine, logger)
		feed.Start(ctx)

		defer feed.Stop(context.WithoutCancel(ctx))
	}

	if src.catalog != nil {
		runner, err := reconciler.New(
			command.String("reconcile-schedule"),
			engine,
			command.Duration("reconcile-timeout"),
			logger,
		)
		if err != nil {
			return err
		}

		err = runner.Start(ctx)
		if err != nil {
			return err
		}

		defer func() {
			err := runner.Stop(context.WithoutCancel(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to stop reconciler", "error", err)
			}
		}()
	}

	api := NewAPI(logger, engine, intakeValidator, persistence)

	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(command.Int("port"))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.ErrorContext(ctx, "API server stopped", "error", err)
		}

		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down prodflow")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err = api.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	return nil
}

// upstream is the optional connection to the originating order system.
type upstream struct {
	client  goredis.UniversalClient
	config  redissource.Config
	catalog scheduler.Catalog
}

func newUpstream(
	ctx context.Context,
	command *cli.Command,
	intakeValidator *intake.Validator,
	logger *slog.Logger,
) (*upstream, error) {
	if url := command.String("redis-url"); url != "" {
		cfg, err := redissource.ConfigFromURL(url)
		if err != nil {
			return nil, err
		}

		cfg.Queue = command.String("intake-queue")
		cfg.CatalogKey = command.String("catalog-key")

		client, err := redissource.NewClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}

		return &upstream{
			client:  client,
			config:  cfg,
			catalog: redissource.NewCatalog(client, cfg, intakeValidator),
		}, nil
	}

	if path := command.String("catalog-file"); path != "" {
		return &upstream{catalog: filesource.NewCatalog(path, intakeValidator)}, nil
	}

	logger.WarnContext(ctx, "No upstream order system configured; reconciliation is disabled")

	return &upstream{}, nil
}

func (u *upstream) close(logger *slog.Logger) {
	if u.client == nil {
		return
	}

	err := u.client.Close()
	if err != nil {
		logger.Error("Failed to close Redis client", "error", err)
	}
}
