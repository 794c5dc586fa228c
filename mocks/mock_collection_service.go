package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"shelf/internal/connection"
	"shelf/internal/domain"
	"shelf/internal/service"
)

// MockCollectionService is a mock implementation of service.CollectionService.
type MockCollectionService struct {
	mock.Mock
}

func (m *MockCollectionService) GetCollectionProducts(ctx context.Context, collectionID uuid.UUID, args connection.Args) (*service.ProductConnection, error) {
	a := m.Called(ctx, collectionID, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(*service.ProductConnection), a.Error(1)
}

func (m *MockCollectionService) Create(ctx context.Context, input *service.CreateCollectionInput) (*domain.Collection, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) GetByID(ctx context.Context, collectionID uuid.UUID) (*domain.Collection, error) {
	args := m.Called(ctx, collectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Collection), args.Int(1), args.Error(2)
}

func (m *MockCollectionService) Update(ctx context.Context, input *service.UpdateCollectionInput) (*domain.Collection, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) Delete(ctx context.Context, collectionID uuid.UUID) error {
	args := m.Called(ctx, collectionID)
	return args.Error(0)
}

func (m *MockCollectionService) SetRuleSet(ctx context.Context, collectionID uuid.UUID, rs *domain.RuleSet) (*domain.Collection, error) {
	args := m.Called(ctx, collectionID, rs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) AddProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error) {
	args := m.Called(ctx, collectionID, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) RemoveProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error) {
	args := m.Called(ctx, collectionID, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) MoveProduct(ctx context.Context, collectionID, productID uuid.UUID, position int) (*domain.Collection, error) {
	args := m.Called(ctx, collectionID, productID, position)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) SetImage(ctx context.Context, input *service.SetImageInput) (*domain.Collection, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionService) ExportProducts(ctx context.Context, collectionID uuid.UUID, w io.Writer) error {
	args := m.Called(ctx, collectionID, w)
	if fn, ok := args.Get(0).(func(io.Writer) error); ok {
		return fn(w)
	}
	return args.Error(0)
}
