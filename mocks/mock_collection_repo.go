package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"shelf/internal/domain"
	"shelf/internal/port"
)

// MockCollectionRepo is a mock implementation of port.CollectionRepository.
type MockCollectionRepo struct {
	mock.Mock
}

func (m *MockCollectionRepo) Create(ctx context.Context, snapshot *domain.CollectionSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockCollectionRepo) GetSnapshot(ctx context.Context, collectionID uuid.UUID) (*domain.CollectionSnapshot, error) {
	args := m.Called(ctx, collectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollectionSnapshot), args.Error(1)
}

func (m *MockCollectionRepo) List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Collection), args.Int(1), args.Error(2)
}

func (m *MockCollectionRepo) UpdateDetails(ctx context.Context, collection *domain.Collection) error {
	args := m.Called(ctx, collection)
	return args.Error(0)
}

func (m *MockCollectionRepo) Mutate(ctx context.Context, collectionID uuid.UUID, fn port.MutateFunc) (*domain.CollectionSnapshot, error) {
	args := m.Called(ctx, collectionID, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollectionSnapshot), args.Error(1)
}

func (m *MockCollectionRepo) Delete(ctx context.Context, collectionID uuid.UUID) error {
	args := m.Called(ctx, collectionID)
	return args.Error(0)
}
