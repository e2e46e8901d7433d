// Package redis connects the scheduler to an upstream order system that
// publishes order records through Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/prodflow/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultAddr       = "localhost:6379"
	defaultQueue      = "prodflow:orders:intake"
	defaultCatalogKey = "prodflow:orders:catalog"
)

// Config addresses the Redis instance and the keys the upstream system writes.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Queue is the list new or changed order records are pushed onto.
	Queue string
	// CatalogKey is the hash of order id to record for every open upstream order.
	CatalogKey string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}

	if c.Queue == "" {
		c.Queue = defaultQueue
	}

	if c.CatalogKey == "" {
		c.CatalogKey = defaultCatalogKey
	}

	return c
}

// ConfigFromURL reads address, credentials and db from a redis:// URL.
func ConfigFromURL(rawURL string) (Config, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid redis url: %w", err)
	}

	return Config{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}, nil
}

// RejectedQueue is where records that fail validation are kept for inspection.
func (c Config) RejectedQueue() string {
	return c.withDefaults().Queue + ":rejected"
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (redis.UniversalClient, error) {
	cfg = cfg.withDefaults()

	if cfg.DB < 0 {
		return nil, fmt.Errorf("invalid redis db %d", cfg.DB)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)

	return client, nil
}

// Decoder turns a raw upstream payload into a validated order record.
type Decoder interface {
	Decode(payload []byte) (models.OrderData, error)
}

// Catalog lists upstream orders from the catalog hash.
type Catalog struct {
	client  redis.UniversalClient
	key     string
	decoder Decoder
}

func NewCatalog(client redis.UniversalClient, cfg Config, decoder Decoder) *Catalog {
	return &Catalog{client: client, key: cfg.withDefaults().CatalogKey, decoder: decoder}
}

func (c *Catalog) OrderIDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.HKeys(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog %s: %w", c.key, err)
	}

	return ids, nil
}

func (c *Catalog) Order(ctx context.Context, orderID string) (*models.OrderData, error) {
	payload, err := c.client.HGet(ctx, c.key, orderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("order %s is not in catalog %s", orderID, c.key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", orderID, err)
	}

	data, err := c.decoder.Decode(payload)
	if err != nil {
		return nil, err
	}

	return &data, nil
}
