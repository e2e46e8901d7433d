package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no queue holds the order.
	ErrNotFound = errors.New("order not found")

	// ErrStoreUnavailable indicates the change could not be made durable; memory is unchanged.
	ErrStoreUnavailable = errors.New("order store unavailable")

	// ErrNotInDepartment indicates the order is queued, but not where the caller expected.
	ErrNotInDepartment = errors.New("order is not in the expected department")

	// ErrUnknownDepartment indicates a department name that is not part of the graph.
	ErrUnknownDepartment = errors.New("unknown department")

	// ErrDuplicate indicates an order would end up in two queues.
	ErrDuplicate = errors.New("order already queued")
)

// OrderError wraps queue errors with the operation and identifiers involved.
type OrderError struct {
	Op         string // Operation being performed (e.g., "upsert", "move", "remove")
	OrderID    string // Order ID if applicable
	Department string // Department the operation targeted
	Err        error  // Underlying error
}

func (e *OrderError) Error() string {
	if e.Department != "" {
		return fmt.Sprintf("%s operation failed for order %s in %s: %v", e.Op, e.OrderID, e.Department, e.Err)
	}

	return fmt.Sprintf("%s operation failed for order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func (e *OrderError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newOrderError(op, orderID, department string, err error) *OrderError {
	return &OrderError{Op: op, OrderID: orderID, Department: department, Err: err}
}

// unavailable keeps both the committer's cause and ErrStoreUnavailable in the chain.
func unavailable(op, orderID, department string, cause error) *OrderError {
	return newOrderError(op, orderID, department, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsNotInDepartment(err error) bool {
	return errors.Is(err, ErrNotInDepartment)
}
