package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/queue"
	redis "github.com/redis/go-redis/v9"
)

const (
	popTimeout   = time.Second
	errorBackoff = time.Second
)

// Ingester admits one validated order record.
type Ingester interface {
	Ingest(ctx context.Context, data models.OrderData) (*models.ProductionOrder, error)
}

// Feed pops order records off the intake list and ingests them one at a time,
// in the order the upstream system pushed them.
type Feed struct {
	client   redis.UniversalClient
	queue    string
	rejected string
	decoder  Decoder
	ingester Ingester
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewFeed(client redis.UniversalClient, cfg Config, decoder Decoder, ingester Ingester, logger *slog.Logger) *Feed {
	cfg = cfg.withDefaults()

	return &Feed{
		client:   client,
		queue:    cfg.Queue,
		rejected: cfg.RejectedQueue(),
		decoder:  decoder,
		ingester: ingester,
		logger:   logger.With("module", "redis_feed", "queue", cfg.Queue),
		stopCh:   make(chan struct{}),
	}
}

func (f *Feed) Start(ctx context.Context) {
	f.logger.InfoContext(ctx, "Starting order feed")

	f.wg.Add(1)

	go f.consume(ctx)
}

func (f *Feed) consume(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-f.stopCh:
			f.logger.InfoContext(ctx, "Order feed stopped")

			return
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "Context cancelled, stopping order feed")

			return
		default:
			_, err := f.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil {
				f.logger.ErrorContext(ctx, "Error processing order record", "error", err)

				select {
				case <-time.After(errorBackoff):
				case <-f.stopCh:
				case <-ctx.Done():
				}
			}
		}
	}
}

// ProcessNext waits up to a second for one record and handles it. It reports
// whether a record was taken off the list.
//
// Records that fail validation go to the rejected list. A record that could not
// be stored is pushed back to the head of the list and the error returned.
func (f *Feed) ProcessNext(ctx context.Context) (bool, error) {
	result, err := f.client.BLPop(ctx, popTimeout, f.queue).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to pop order record: %w", err)
	}

	if len(result) < 2 {
		return false, nil
	}

	payload := result[1]

	data, err := f.decoder.Decode([]byte(payload))
	if err == nil {
		_, err = f.ingester.Ingest(ctx, data)
	}

	switch {
	case err == nil:
		return true, nil
	case queue.IsStoreUnavailable(err):
		pushErr := f.client.LPush(ctx, f.queue, payload).Err()
		if pushErr != nil {
			return true, fmt.Errorf("failed to requeue order %s after %w: %w", data.OrderID, err, pushErr)
		}

		return true, err
	default:
		f.logger.WarnContext(ctx, "Order record rejected", "order_id", data.OrderID, "error", err, "validation", intake.IsValidation(err))

		pushErr := f.client.RPush(ctx, f.rejected, payload).Err()
		if pushErr != nil {
			return true, fmt.Errorf("failed to keep rejected record: %w", pushErr)
		}

		return true, nil
	}
}

func (f *Feed) Stop(ctx context.Context) {
	f.logger.InfoContext(ctx, "Stopping order feed")

	close(f.stopCh)
	f.wg.Wait()
}
