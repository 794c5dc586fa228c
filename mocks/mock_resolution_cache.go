package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"shelf/internal/port"
)

// MockResolutionCache is a mock implementation of port.ResolutionCache.
type MockResolutionCache struct {
	mock.Mock
}

func (m *MockResolutionCache) Get(ctx context.Context, key port.ResolutionKey) ([]uuid.UUID, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *MockResolutionCache) Set(ctx context.Context, key port.ResolutionKey, ids []uuid.UUID) error {
	args := m.Called(ctx, key, ids)
	return args.Error(0)
}
