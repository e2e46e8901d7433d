// Package gochannel provides the in-process Watermill transport for scheduler events.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const defaultBuffer = 1000

type Config struct {
	// Buffer is the per-subscriber output buffer; zero means 1000.
	Buffer int64
	// BlockUntilAck makes Publish wait for subscribers, which keeps tests deterministic.
	BlockUntilAck bool
}

// CreateChannel returns one GoChannel that serves as both publisher and subscriber.
func CreateChannel(logger watermill.LoggerAdapter, cfg Config) *gochannel.GoChannel {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: cfg.BlockUntilAck,
		},
		logger,
	)
}
