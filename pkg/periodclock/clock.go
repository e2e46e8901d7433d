package periodclock

import (
	"errors"
	"fmt"
)

// DefaultPeriodLengthDays is the length of a scheduling period when none is configured.
const DefaultPeriodLengthDays = 14

var ErrInvalidDate = errors.New("invalid date")

// NegativePolicy decides what happens to dates that fall before the epoch.
type NegativePolicy string

const (
	// NegativeReject fails with ErrInvalidDate for dates before the epoch.
	NegativeReject NegativePolicy = "reject"
	// NegativeAllow returns negative indices for periods before the epoch.
	NegativeAllow NegativePolicy = "allow"
	// NegativeClamp maps every date before the epoch to period 0.
	NegativeClamp NegativePolicy = "clamp"
)

// ParseNegativePolicy accepts the names used in configuration; empty means reject.
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch NegativePolicy(s) {
	case "", NegativeReject:
		return NegativeReject, nil
	case NegativeAllow:
		return NegativeAllow, nil
	case NegativeClamp:
		return NegativeClamp, nil
	default:
		return "", fmt.Errorf("unknown negative period policy %q", s)
	}
}

// InvalidDateError reports a date that violates the clock's preconditions.
type InvalidDateError struct {
	Date   Date
	Epoch  Date
	Reason string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %s (epoch %s): %s", e.Date, e.Epoch, e.Reason)
}

func (e *InvalidDateError) Unwrap() error {
	return ErrInvalidDate
}

// Config holds the process-wide period settings.
type Config struct {
	Epoch            Date
	PeriodLengthDays int
	Negative         NegativePolicy
}

// Period is the half-open window [Start, End) of one scheduling period.
type Period struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Start Date   `json:"start"`
	End   Date   `json:"end"`
}

// Contains reports whether d falls inside the window.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// Clock computes period indices for a fixed epoch and period length.
// It never reads the current time.
type Clock struct {
	epoch    Date
	length   int
	negative NegativePolicy
}

func New(cfg Config) (*Clock, error) {
	if cfg.Epoch.IsZero() {
		return nil, errors.New("period clock epoch is required")
	}

	length := cfg.PeriodLengthDays
	if length == 0 {
		length = DefaultPeriodLengthDays
	}

	if length < 0 {
		return nil, fmt.Errorf("period length must be positive, got %d", length)
	}

	negative, err := ParseNegativePolicy(string(cfg.Negative))
	if err != nil {
		return nil, err
	}

	return &Clock{epoch: cfg.Epoch, length: length, negative: negative}, nil
}

func (c *Clock) Epoch() Date {
	return c.epoch
}

func (c *Clock) PeriodLengthDays() int {
	return c.length
}

// PeriodIndex returns the index of the period containing date, applying the
// clock's negative policy to dates before the epoch.
func (c *Clock) PeriodIndex(date Date) (int, error) {
	if date.IsZero() {
		return 0, &InvalidDateError{Date: date, Epoch: c.epoch, Reason: "date is required"}
	}

	k := PeriodIndex(date, c.epoch, c.length)
	if k >= 0 {
		return k, nil
	}

	switch c.negative {
	case NegativeAllow:
		return k, nil
	case NegativeClamp:
		return 0, nil
	default:
		return 0, &InvalidDateError{Date: date, Epoch: c.epoch, Reason: "date is before the epoch"}
	}
}

// Period returns the window of period k.
func (c *Clock) Period(k int) Period {
	start := c.epoch.AddDays(k * c.length)

	return Period{
		Index: k,
		Code:  PeriodCode(k),
		Start: start,
		End:   start.AddDays(c.length),
	}
}

// PeriodOf resolves date to its period window.
func (c *Clock) PeriodOf(date Date) (Period, error) {
	k, err := c.PeriodIndex(date)
	if err != nil {
		return Period{}, err
	}

	return c.Period(k), nil
}

// PeriodIndex computes floor((date - epoch) / periodLengthDays) on whole days.
// periodLengthDays must be positive.
func PeriodIndex(date, epoch Date, periodLengthDays int) int {
	days := epoch.DaysUntil(date)

	k := days / periodLengthDays
	if days%periodLengthDays != 0 && days < 0 {
		k--
	}

	return k
}
