package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/queue"
	source "github.com/dukex/prodflow/pkg/sources/redis"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

func setupRedis(t *testing.T) (redis.UniversalClient, source.Config) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForListeningPort("6379/tcp"),
			},
			Started: true,
		})
		if err != nil {
			redisErr = err

			return
		}

		redisAddr, redisErr = container.Endpoint(ctx, "")
	})
	require.NoError(t, redisErr)

	cfg := source.Config{
		Addr:       redisAddr,
		Queue:      "test:" + t.Name() + ":intake",
		CatalogKey: "test:" + t.Name() + ":catalog",
	}

	client, err := source.NewClient(t.Context(), cfg, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Del(context.Background(), cfg.Queue, cfg.CatalogKey, cfg.RejectedQueue()).Err()
		_ = client.Close()
	})

	return client, cfg
}

type recordingIngester struct {
	mu      sync.Mutex
	records []models.OrderData
	err     error
}

func (r *recordingIngester) Ingest(_ context.Context, data models.OrderData) (*models.ProductionOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	r.records = append(r.records, data)

	return &models.ProductionOrder{OrderID: data.OrderID}, nil
}

func payload(t *testing.T, id string) string {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"order_id":       id,
		"customer":       "Acme",
		"product":        "Stock",
		"quantity":       1,
		"priority_score": 10,
	})
	require.NoError(t, err)

	return string(raw)
}

func newValidator(t *testing.T) *intake.Validator {
	t.Helper()

	v, err := intake.NewValidator()
	require.NoError(t, err)

	return v
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "prodflow:orders:intake:rejected", source.Config{}.RejectedQueue())
	assert.Equal(t, "orders:rejected", source.Config{Queue: "orders"}.RejectedQueue())
}

func TestConfigFromURL(t *testing.T) {
	t.Parallel()

	cfg, err := source.ConfigFromURL("redis://:secret@cache.internal:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 2, cfg.DB)

	_, err = source.ConfigFromURL("http://cache.internal")
	assert.Error(t, err)
}

func TestFeed_ProcessNext(t *testing.T) {
	client, cfg := setupRedis(t)
	ctx := t.Context()

	ingester := &recordingIngester{}
	feed := source.NewFeed(client, cfg, newValidator(t), ingester, slog.Default())

	require.NoError(t, client.RPush(ctx, cfg.Queue, payload(t, "AB001"), `{"order_id":"AB002"}`, payload(t, "AB003")).Err())

	for range 3 {
		taken, err := feed.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, taken)
	}

	taken, err := feed.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, taken)

	require.Len(t, ingester.records, 2)
	assert.Equal(t, "AB001", ingester.records[0].OrderID)
	assert.Equal(t, "AB003", ingester.records[1].OrderID)

	rejected, err := client.LRange(ctx, cfg.RejectedQueue(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{`{"order_id":"AB002"}`}, rejected)
}

func TestFeed_RequeuesWhenStoreUnavailable(t *testing.T) {
	client, cfg := setupRedis(t)
	ctx := t.Context()

	ingester := &recordingIngester{err: fmt.Errorf("ingest: %w", queue.ErrStoreUnavailable)}
	feed := source.NewFeed(client, cfg, newValidator(t), ingester, slog.Default())

	require.NoError(t, client.RPush(ctx, cfg.Queue, payload(t, "AB001"), payload(t, "AB002")).Err())

	_, err := feed.ProcessNext(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrStoreUnavailable))

	pending, err := client.LRange(ctx, cfg.Queue, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{payload(t, "AB001"), payload(t, "AB002")}, pending, "arrival order is kept")
}

func TestFeed_StartStop(t *testing.T) {
	client, cfg := setupRedis(t)
	ctx := t.Context()

	ingester := &recordingIngester{}
	feed := source.NewFeed(client, cfg, newValidator(t), ingester, slog.Default())
	feed.Start(ctx)

	require.NoError(t, client.RPush(ctx, cfg.Queue, payload(t, "AB001")).Err())

	assert.Eventually(t, func() bool {
		ingester.mu.Lock()
		defer ingester.mu.Unlock()

		return len(ingester.records) == 1
	}, 5*time.Second, 20*time.Millisecond)

	feed.Stop(ctx)
}

func TestFeed_StopDuringErrorBackoff(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})

	t.Cleanup(func() { _ = client.Close() })

	feed := source.NewFeed(client, source.Config{Queue: "orders:intake"}, newValidator(t), &recordingIngester{}, slog.Default())
	feed.Start(t.Context())

	// Let the first pop fail so the feed is waiting out its backoff.
	time.Sleep(200 * time.Millisecond)

	stopped := make(chan struct{})

	go func() {
		feed.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop waited for the error backoff to elapse")
	}
}

func TestCatalog(t *testing.T) {
	client, cfg := setupRedis(t)
	ctx := t.Context()

	require.NoError(t, client.HSet(ctx, cfg.CatalogKey, "AB001", payload(t, "AB001"), "AB002", "not json").Err())

	catalog := source.NewCatalog(client, cfg, newValidator(t))

	ids, err := catalog.OrderIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AB001", "AB002"}, ids)

	order, err := catalog.Order(ctx, "AB001")
	require.NoError(t, err)
	assert.Equal(t, "Acme", order.Customer)

	_, err = catalog.Order(ctx, "AB002")
	assert.True(t, intake.IsValidation(err))

	_, err = catalog.Order(ctx, "AB404")
	assert.Error(t, err)
}
