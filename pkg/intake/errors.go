package intake

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// FieldError names one field that failed validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem found in one order record.
type ValidationError struct {
	OrderID string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		reasons[i] = f.Field + ": " + f.Reason
	}

	target := "order record"
	if e.OrderID != "" {
		target = "order " + e.OrderID
	}

	return fmt.Sprintf("%s failed validation: %s", target, strings.Join(reasons, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Invalid builds a single-field validation error.
func Invalid(orderID, field, reason string) *ValidationError {
	return &ValidationError{OrderID: orderID, Fields: []FieldError{{Field: field, Reason: reason}}}
}
