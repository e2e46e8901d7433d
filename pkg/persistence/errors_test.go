package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewOrderError("OrderByID", "AA001", persistence.ErrOrderNotFound)

		assert.True(t, persistence.IsOrderNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrOrderNotFound))
		assert.False(t, persistence.IsOrderNotFound(errors.New("boom")))
	})

	t.Run("order error contains context", func(t *testing.T) {
		err := persistence.NewOrderError("Apply", "AA001", persistence.ErrOrderNotFound)

		assert.Contains(t, err.Error(), "Apply")
		assert.Contains(t, err.Error(), "AA001")
		assert.Contains(t, err.Error(), "order not found")
	})
}

func TestValidateChange(t *testing.T) {
	t.Parallel()

	order := &models.ProductionOrder{OrderID: "AA001"}

	assert.NoError(t, persistence.ValidateChange("Apply", models.OrderChange{Kind: models.ChangeUpsert, Order: order}))

	err := persistence.ValidateChange("Apply", models.OrderChange{Kind: models.ChangeUpsert})
	assert.ErrorIs(t, err, persistence.ErrInvalidChange)

	err = persistence.ValidateChange("Apply", models.OrderChange{
		Kind:       models.ChangeMove,
		Order:      order,
		Transition: &models.StageTransition{OrderID: "AA002"},
	})
	assert.ErrorIs(t, err, persistence.ErrInvalidChange)
}
