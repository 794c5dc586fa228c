package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"shelf/internal/port"
)

// MockImageStore is a mock implementation of port.ImageStore.
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Put(ctx context.Context, input port.ImageUpload) (*port.StoredImage, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.StoredImage), args.Error(1)
}

func (m *MockImageStore) Remove(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockImageStore) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiry)
	return args.String(0), args.Error(1)
}
