package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/persistence/file"
	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	clock, err := periodclock.New(periodclock.Config{Epoch: periodclock.MustParseDate(defaultEpoch)})
	require.NoError(t, err)

	store := file.NewPersistence(t.TempDir())

	engine, err := scheduler.New(scheduler.Config{
		Clock:       clock,
		Persistence: store,
		Now:         func() time.Time { return time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	intakeValidator, err := intake.NewValidator()
	require.NoError(t, err)

	return NewAPI(slog.Default(), engine, intakeValidator, store).App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "prodflow", string(body))
}

func TestAPI_HealthEndpoints(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		t.Run(path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestAPI_RoutesMounted(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	body := `{"order_id":"AA001","customer":"Acme","product":"Stock","quantity":1,"spec_ref":"M1"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/departments", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
