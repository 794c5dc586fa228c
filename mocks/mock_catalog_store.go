package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"shelf/internal/domain"
	"shelf/internal/port"
)

// MockCatalogStore is a mock implementation of port.CatalogStore. Scans
// replay the products configured by the first return value.
type MockCatalogStore struct {
	mock.Mock
}

func (m *MockCatalogStore) ListProducts(ctx context.Context, visit port.ProductVisitor) error {
	args := m.Called(ctx, visit)
	if products, ok := args.Get(0).([]domain.Product); ok {
		for i := range products {
			if err := visit(&products[i]); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

func (m *MockCatalogStore) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.Product), args.Error(1)
}

func (m *MockCatalogStore) Revision(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
