// Package persistence provides the durable record of production orders and their stage history.
package persistence

import (
	"context"

	"github.com/dukex/prodflow/pkg/models"
)

type Persistence interface {
	// Apply makes one queue change durable: the order's latest state and, when
	// present, its stage transition, as a single unit.
	Apply(ctx context.Context, change models.OrderChange) error

	// ActiveOrders returns every order that is still queued or in progress.
	ActiveOrders(ctx context.Context) ([]*models.ProductionOrder, error)

	// OrderByID returns the latest state of an order, including archived ones.
	OrderByID(ctx context.Context, orderID string) (*models.ProductionOrder, error)

	// Transitions returns the stage history of an order, oldest first.
	Transitions(ctx context.Context, orderID string) ([]models.StageTransition, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
