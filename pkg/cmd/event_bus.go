// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/prodflow/pkg/channels/gochannel"
	"github.com/dukex/prodflow/pkg/channels/kafka"
	"github.com/dukex/prodflow/pkg/eventbus"
)

// EventBusConfig selects and configures the event transport.
type EventBusConfig struct {
	// Provider is "gochannel" (in-process) or "kafka".
	Provider      string
	KafkaBrokers  string
	ConsumerGroup string
}

func NewEventBus(cfg EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch cfg.Provider {
	case "", "gochannel":
		pubSub := gochannel.CreateChannel(wmLogger, gochannel.Config{})

		return eventbus.NewWatermillEventBus(pubSub, pubSub, logger), nil
	case "kafka":
		group := cfg.ConsumerGroup
		if group == "" {
			group = "prodflow"
		}

		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.Config{
			Brokers:       kafka.ParseBrokers(cfg.KafkaBrokers),
			ConsumerGroup: group,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", cfg.Provider)
	}
}
