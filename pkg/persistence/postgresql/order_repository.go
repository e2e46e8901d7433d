package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/persistence"
)

const orderColumns = `
			order_id
		  , customer
		  , product
		  , quantity
		  , priority_score
		  , due_date
		  , stock_model
		  , flags
		  , period_index
		  , period_code
		  , current_department
		  , state
		  , enqueued_at
		  , rework_count
		  , urgency
		  , needs_information
		  , created_at
		  , updated_at
`

// OrderRepository handles production order rows.
type OrderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewOrderRepository(db *sql.DB, logger *slog.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

// Active returns orders that are still in the pipeline, ordered by id.
func (r *OrderRepository) Active(ctx context.Context) ([]*models.ProductionOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM production_orders
		WHERE state IN ('queued', 'in_progress', 'reworked')
		ORDER BY order_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active orders: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	orders := make([]*models.ProductionOrder, 0)

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		orders = append(orders, order)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*models.ProductionOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM production_orders WHERE order_id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewOrderError("get_order", orderID, persistence.ErrOrderNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	return order, nil
}

func (r *OrderRepository) save(ctx context.Context, tx *sql.Tx, order *models.ProductionOrder, reason string) error {
	flags, err := json.Marshal(order.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	if order.Flags == nil {
		flags = []byte("[]")
	}

	var dueDate sql.NullTime
	if order.DueDate != nil {
		dueDate = sql.NullTime{Time: order.DueDate.Time(), Valid: true}
	}

	query := `
		INSERT INTO production_orders (` + orderColumns + `, removal_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (order_id) DO UPDATE SET
			customer = EXCLUDED.customer,
			product = EXCLUDED.product,
			quantity = EXCLUDED.quantity,
			priority_score = EXCLUDED.priority_score,
			due_date = EXCLUDED.due_date,
			stock_model = EXCLUDED.stock_model,
			flags = EXCLUDED.flags,
			period_index = EXCLUDED.period_index,
			period_code = EXCLUDED.period_code,
			current_department = EXCLUDED.current_department,
			state = EXCLUDED.state,
			enqueued_at = EXCLUDED.enqueued_at,
			rework_count = EXCLUDED.rework_count,
			urgency = EXCLUDED.urgency,
			needs_information = EXCLUDED.needs_information,
			updated_at = EXCLUDED.updated_at,
			removal_reason = EXCLUDED.removal_reason
	`

	_, err = tx.ExecContext(ctx, query,
		order.OrderID,
		order.Customer,
		order.Product,
		order.Quantity,
		order.PriorityScore,
		dueDate,
		order.StockModel,
		flags,
		order.PeriodIndex,
		order.PeriodCode,
		order.CurrentDepartment,
		string(order.State),
		order.EnqueuedAt,
		order.ReworkCount,
		string(order.Urgency),
		order.NeedsInformation,
		order.CreatedAt,
		order.UpdatedAt,
		reason,
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.ProductionOrder, error) {
	var (
		order   models.ProductionOrder
		dueDate sql.NullTime
		flags   []byte
		state   string
		urgency string
	)

	err := row.Scan(
		&order.OrderID,
		&order.Customer,
		&order.Product,
		&order.Quantity,
		&order.PriorityScore,
		&dueDate,
		&order.StockModel,
		&flags,
		&order.PeriodIndex,
		&order.PeriodCode,
		&order.CurrentDepartment,
		&state,
		&order.EnqueuedAt,
		&order.ReworkCount,
		&urgency,
		&order.NeedsInformation,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		due := periodclock.DateOf(dueDate.Time)
		order.DueDate = &due
	}

	if len(flags) > 0 {
		err = json.Unmarshal(flags, &order.Flags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
		}
	}

	if len(order.Flags) == 0 {
		order.Flags = nil
	}

	order.State = models.OrderState(state)
	order.Urgency = models.Urgency(urgency)

	return &order, nil
}
