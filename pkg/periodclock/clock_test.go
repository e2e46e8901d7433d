package periodclock_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClock(t *testing.T, policy periodclock.NegativePolicy) *periodclock.Clock {
	t.Helper()

	clock, err := periodclock.New(periodclock.Config{
		Epoch:            periodclock.MustParseDate("2025-07-01"),
		PeriodLengthDays: 14,
		Negative:         policy,
	})
	require.NoError(t, err)

	return clock
}

func TestClock_PeriodIndex_Boundaries(t *testing.T) {
	t.Parallel()

	clock := newClock(t, periodclock.NegativeReject)

	tests := []struct {
		date     string
		expected int
	}{
		{"2025-07-01", 0},
		{"2025-07-14", 0},
		{"2025-07-15", 1},
		{"2025-07-28", 1},
		{"2025-07-29", 2},
		{"2026-06-30", 26},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			k, err := clock.PeriodIndex(periodclock.MustParseDate(tt.date))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, k)
		})
	}
}

func TestClock_PeriodIndex_NegativePolicies(t *testing.T) {
	t.Parallel()

	before := periodclock.MustParseDate("2025-06-30")

	t.Run("reject", func(t *testing.T) {
		_, err := newClock(t, periodclock.NegativeReject).PeriodIndex(before)
		require.Error(t, err)
		assert.True(t, errors.Is(err, periodclock.ErrInvalidDate))

		var dateErr *periodclock.InvalidDateError
		require.ErrorAs(t, err, &dateErr)
		assert.Equal(t, before, dateErr.Date)
	})

	t.Run("allow", func(t *testing.T) {
		k, err := newClock(t, periodclock.NegativeAllow).PeriodIndex(before)
		require.NoError(t, err)
		assert.Equal(t, -1, k)

		k, err = newClock(t, periodclock.NegativeAllow).PeriodIndex(periodclock.MustParseDate("2025-06-17"))
		require.NoError(t, err)
		assert.Equal(t, -1, k)

		k, err = newClock(t, periodclock.NegativeAllow).PeriodIndex(periodclock.MustParseDate("2025-06-16"))
		require.NoError(t, err)
		assert.Equal(t, -2, k)
	})

	t.Run("clamp", func(t *testing.T) {
		k, err := newClock(t, periodclock.NegativeClamp).PeriodIndex(before)
		require.NoError(t, err)
		assert.Equal(t, 0, k)
	})
}

func TestPeriodIndex_Monotonic(t *testing.T) {
	t.Parallel()

	epoch := periodclock.MustParseDate("2025-07-01")
	start := epoch.AddDays(-400)

	prev := periodclock.PeriodIndex(start, epoch, 14)
	for i := 1; i < 800; i++ {
		k := periodclock.PeriodIndex(start.AddDays(i), epoch, 14)
		assert.GreaterOrEqual(t, k, prev, "day %d", i)
		assert.LessOrEqual(t, k-prev, 1)

		prev = k
	}
}

func TestPeriodIndex_Pure(t *testing.T) {
	t.Parallel()

	epoch := periodclock.MustParseDate("2025-07-01")
	date := periodclock.MustParseDate("2025-09-12")

	first := periodclock.PeriodIndex(date, epoch, 14)

	time.Sleep(time.Millisecond)

	assert.Equal(t, first, periodclock.PeriodIndex(date, epoch, 14))
}

func TestDateOf_IgnoresTimeOfDayAndZone(t *testing.T) {
	t.Parallel()

	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skip("timezone database not available")
	}

	late := time.Date(2025, 7, 14, 23, 30, 0, 0, denver)
	clock := newClock(t, periodclock.NegativeReject)

	k, err := clock.PeriodIndex(periodclock.DateOf(late))
	require.NoError(t, err)
	assert.Equal(t, 0, k, "local calendar date must be used, not the UTC instant")
}

func TestClock_Period(t *testing.T) {
	t.Parallel()

	clock := newClock(t, periodclock.NegativeReject)

	period := clock.Period(1)
	assert.Equal(t, periodclock.MustParseDate("2025-07-15"), period.Start)
	assert.Equal(t, periodclock.MustParseDate("2025-07-29"), period.End)
	assert.Equal(t, "AB", period.Code)
	assert.True(t, period.Contains(periodclock.MustParseDate("2025-07-28")))
	assert.False(t, period.Contains(periodclock.MustParseDate("2025-07-29")))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := periodclock.New(periodclock.Config{PeriodLengthDays: 14})
	assert.Error(t, err)

	_, err = periodclock.New(periodclock.Config{Epoch: periodclock.MustParseDate("2025-07-01"), PeriodLengthDays: -1})
	assert.Error(t, err)

	_, err = periodclock.New(periodclock.Config{Epoch: periodclock.MustParseDate("2025-07-01"), Negative: "sometimes"})
	assert.Error(t, err)

	clock, err := periodclock.New(periodclock.Config{Epoch: periodclock.MustParseDate("2025-07-01")})
	require.NoError(t, err)
	assert.Equal(t, periodclock.DefaultPeriodLengthDays, clock.PeriodLengthDays())
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Due *periodclock.Date `json:"due,omitempty"`
	}

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-08-01"}`), &p))
	require.NotNil(t, p.Due)
	assert.Equal(t, periodclock.NewDate(2025, time.August, 1), *p.Due)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2025-08-01"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"due":"08/01/2025"}`), &p))
}
