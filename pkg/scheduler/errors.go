package scheduler

import (
	"errors"

	"github.com/dukex/prodflow/pkg/departments"
	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/queue"
)

// Error kinds surfaced by the engine. Each is matched with errors.Is.
var (
	ErrValidation        = intake.ErrValidation
	ErrIllegalTransition = departments.ErrIllegalTransition
	ErrNotFound          = queue.ErrNotFound
	ErrUnknownDepartment = queue.ErrUnknownDepartment
	ErrInvalidDate       = periodclock.ErrInvalidDate
	ErrStoreUnavailable  = queue.ErrStoreUnavailable
)

type (
	ValidationError        = intake.ValidationError
	IllegalTransitionError = departments.IllegalTransitionError
	InvalidDateError       = periodclock.InvalidDateError
)

// IsValidation reports malformed intake data; the caller must correct it.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsNotFound reports an unknown order or department.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownDepartment)
}

func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

// IsStoreUnavailable reports a failure the caller may retry with backoff.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
