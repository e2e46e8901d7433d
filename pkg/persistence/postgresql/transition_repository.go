package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/prodflow/pkg/models"
)

// TransitionRepository handles the append-only stage history.
type TransitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTransitionRepository(db *sql.DB, logger *slog.Logger) *TransitionRepository {
	return &TransitionRepository{db: db, logger: logger}
}

// ByOrder returns the order's transitions in insertion order.
func (r *TransitionRepository) ByOrder(ctx context.Context, orderID string) ([]models.StageTransition, error) {
	query := `
		SELECT
			order_id
		  , from_department
		  , to_department
		  , kind
		  , at
		FROM stage_transitions
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	transitions := make([]models.StageTransition, 0)

	for rows.Next() {
		var (
			transition models.StageTransition
			kind       string
		)

		err := rows.Scan(
			&transition.OrderID,
			&transition.FromDepartment,
			&transition.ToDepartment,
			&kind,
			&transition.At,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}

		transition.Kind = models.TransitionKind(kind)
		transitions = append(transitions, transition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

func (r *TransitionRepository) insert(ctx context.Context, tx *sql.Tx, transition models.StageTransition) error {
	query := `
		INSERT INTO stage_transitions (order_id, from_department, to_department, kind, at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.ExecContext(ctx, query,
		transition.OrderID,
		transition.FromDepartment,
		transition.ToDepartment,
		string(transition.Kind),
		transition.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition for order %s: %w", transition.OrderID, err)
	}

	return nil
}
