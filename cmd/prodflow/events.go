package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dukex/prodflow/pkg/cmd"
	"github.com/dukex/prodflow/pkg/events"
	"github.com/dukex/prodflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var tailedEvents = []events.EventType{
	events.OrderIngestedEvent,
	events.StageTransitionedEvent,
	events.OrderReprioritizedEvent,
	events.OrderRemovedEvent,
	events.QueueChangedEvent,
}

func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Work with the scheduler event stream",
		Commands: []*cli.Command{
			{
				Name:  "tail",
				Usage: "Print scheduler events as JSON lines until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "event-bus",
						Usage:   "Event bus type (kafka; gochannel only sees events of this process)",
						Value:   "kafka",
						Sources: cli.EnvVars("EVENT_BUS_TYPE"),
					},
					&cli.StringFlag{
						Name:    "kafka-brokers",
						Usage:   "Comma-separated Kafka brokers",
						Sources: cli.EnvVars("KAFKA_BROKERS"),
					},
					&cli.StringFlag{
						Name:  "consumer-group",
						Usage: "Kafka consumer group for this tail",
						Value: "prodflow-tail",
					},
					logLevelFlag(),
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					logger := log.WithModule("events-tail")

					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()

					eventBus, err := cmd.NewEventBus(cmd.EventBusConfig{
						Provider:      command.String("event-bus"),
						KafkaBrokers:  command.String("kafka-brokers"),
						ConsumerGroup: command.String("consumer-group"),
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

					printer := newEventPrinter(command.Root().Writer)
					for _, eventType := range tailedEvents {
						err := eventBus.Handle(eventType, printer.print)
						if err != nil {
							return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
						}
					}

					err = eventBus.Subscribe(ctx)
					if err != nil {
						return fmt.Errorf("failed to subscribe: %w", err)
					}

					<-ctx.Done()

					return nil
				},
			},
		},
	}
}

// eventPrinter serialises writes from concurrent handlers.
type eventPrinter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{encoder: json.NewEncoder(w)}
}

func (p *eventPrinter) print(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.encoder.Encode(event)
}
