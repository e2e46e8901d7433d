package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := &cli.Command{
		Name:   "prodflow",
		Writer: &out,
		Commands: []*cli.Command{
			NewPeriodCommand(),
			NewOrderIDCommand(),
			NewGraphCommand(),
		},
	}

	err := root.Run(context.Background(), append([]string{"prodflow"}, args...))

	return out.String(), err
}

func TestPeriodCommand(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "period", "2025-07-20")
	require.NoError(t, err)

	var period periodclock.Period
	require.NoError(t, json.Unmarshal([]byte(out), &period))
	assert.Equal(t, 1, period.Index)
	assert.Equal(t, "AB", period.Code)
	assert.Equal(t, periodclock.MustParseDate("2025-07-15"), period.Start)
}

func TestPeriodCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"missing date", []string{"period"}},
		{"malformed date", []string{"period", "07/20/2025"}},
		{"before epoch", []string{"period", "2025-06-01"}},
		{"bad policy", []string{"period", "--negative-periods", "sometimes", "2025-07-20"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestPeriodCommand_ClampPolicy(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "period", "--negative-periods", "clamp", "2025-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, `"code": "AA"`)
}

func TestOrderIDCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"first of period", []string{"order-id", "2025-07-20"}, "AB001"},
		{"increments", []string{"order-id", "2025-07-20", "AB041"}, "AB042"},
		{"custom period length", []string{"order-id", "--period-length-days", "7", "2025-07-20"}, "AC001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, strings.TrimSpace(out))
		})
	}
}

func TestGraphValidateCommand(t *testing.T) {
	t.Parallel()

	t.Run("built-in graph", func(t *testing.T) {
		out, err := runCLI(t, "graph", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "0. P1 Production Queue")
		assert.Contains(t, out, "skip    -> Shipping QC when no_stock_model")
		assert.Contains(t, out, "8. Shipping (terminal)")
		assert.Contains(t, out, "OK: 9 stages")
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.yaml")
		require.NoError(t, os.WriteFile(path, []byte("stages: [Cut, Sew, Pack]\nreworks:\n  - {from: Pack, to: Sew}\n"), 0o600))

		out, err := runCLI(t, "graph", "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "rework  -> Sew")
		assert.Contains(t, out, "OK: 3 stages")
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.yaml")
		require.NoError(t, os.WriteFile(path, []byte("stages: [Cut]\nunknown: true\n"), 0o600))

		_, err := runCLI(t, "graph", "validate", path)
		assert.Error(t, err)
	})
}
