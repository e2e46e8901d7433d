package departments

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal stage transition")
	ErrInvalidDefinition = errors.New("invalid department graph definition")
)

// IllegalTransitionError names the stage pair a caller asked for.
type IllegalTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal transition %q -> %q: %s", e.From, e.To, e.Reason)
	}

	return fmt.Sprintf("illegal transition %q -> %q", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

func definitionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
