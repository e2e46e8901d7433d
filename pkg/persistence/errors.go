// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/prodflow/pkg/models"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrOrderNotFound indicates no order was ever stored under the given identifier.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidChange indicates a change that cannot be stored as given.
	ErrInvalidChange = errors.New("invalid order change")
)

// OrderError wraps order-related errors with additional context.
type OrderError struct {
	Op      string // Operation being performed (e.g., "Apply", "OrderByID")
	OrderID string // Order ID if applicable
	Err     error  // Underlying error
}

func (e *OrderError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for order errors.
func (e *OrderError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOrderError creates a new order error with context.
func NewOrderError(op, orderID string, err error) *OrderError {
	return &OrderError{
		Op:      op,
		OrderID: orderID,
		Err:     err,
	}
}

// IsOrderNotFound checks if an error indicates an order was not found.
func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// ValidateChange rejects changes an implementation could not store consistently.
func ValidateChange(op string, change models.OrderChange) error {
	if change.Order == nil || change.Order.OrderID == "" {
		return NewOrderError(op, "", fmt.Errorf("%w: order is required", ErrInvalidChange))
	}

	if change.Transition != nil && change.Transition.OrderID != change.Order.OrderID {
		return NewOrderError(op, change.Order.OrderID, fmt.Errorf("%w: transition belongs to %s", ErrInvalidChange, change.Transition.OrderID))
	}

	return nil
}
