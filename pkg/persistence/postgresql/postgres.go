// Package postgresql provides PostgreSQL persistence for production orders and their stage history.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/persistence"
	"github.com/dukex/prodflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	orders      *OrderRepository
	transitions *TransitionRepository
}

// NewPersistence connects to databaseURL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		orders:      NewOrderRepository(database, logger),
		transitions: NewTransitionRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Apply upserts the order row and inserts its transition in one transaction.
func (p *Persistence) Apply(ctx context.Context, change models.OrderChange) error {
	err := persistence.ValidateChange("apply", change)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = p.orders.save(ctx, tx, change.Order, change.Reason)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	if change.Transition != nil {
		err = p.transitions.insert(ctx, tx, *change.Transition)
		if err != nil {
			_ = tx.Rollback()

			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit change for order %s: %w", change.Order.OrderID, err)
	}

	return nil
}

func (p *Persistence) ActiveOrders(ctx context.Context) ([]*models.ProductionOrder, error) {
	return p.orders.Active(ctx)
}

func (p *Persistence) OrderByID(ctx context.Context, orderID string) (*models.ProductionOrder, error) {
	return p.orders.GetByID(ctx, orderID)
}

func (p *Persistence) Transitions(ctx context.Context, orderID string) ([]models.StageTransition, error) {
	return p.transitions.ByOrder(ctx, orderID)
}
