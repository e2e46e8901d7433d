package mocks

import (
	"context"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Apply(ctx context.Context, change models.OrderChange) error {
	args := m.Called(ctx, change)

	return args.Error(0)
}

func (m *MockPersistence) ActiveOrders(ctx context.Context) ([]*models.ProductionOrder, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ProductionOrder), args.Error(1)
}

func (m *MockPersistence) OrderByID(ctx context.Context, orderID string) (*models.ProductionOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ProductionOrder), args.Error(1)
}

func (m *MockPersistence) Transitions(ctx context.Context, orderID string) ([]models.StageTransition, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.StageTransition), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockCatalog is a mock implementation of scheduler.Catalog interface.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) OrderIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalog) Order(ctx context.Context, orderID string) (*models.OrderData, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.OrderData), args.Error(1)
}
