package cmd

import (
	"log/slog"
	"testing"

	"github.com/dukex/prodflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"./data":                      "file",
		"file:///var/lib/prodflow":    "file",
		"postgres://u:p@db/prodflow":  "postgres",
		"postgresql://u:p@db/prodflow": "postgresql",
		"mysql://db":                  "mysql",
	}

	for url, expected := range tests {
		assert.Equal(t, expected, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	t.Parallel()

	p, err := NewPersistence(t.Context(), slog.Default(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)

	_, err = NewPersistence(t.Context(), slog.Default(), "mysql://db")
	assert.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := NewEventBus(EventBusConfig{Provider: "gochannel"}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus(EventBusConfig{Provider: "nats"}, slog.Default())
	assert.Error(t, err)

	_, err = NewEventBus(EventBusConfig{Provider: "kafka"}, slog.Default())
	assert.Error(t, err, "kafka without brokers")
}
