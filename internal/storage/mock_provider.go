package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// MockRawStore is a testify mock of crawler.RawStore.
type MockRawStore struct {
	mock.Mock
}

// Exists is the mock implementation of the Exists method.
func (m *MockRawStore) Exists(ctx context.Context, sourceURL string) (bool, error) {
	args := m.Called(ctx, sourceURL)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}

// Insert is the mock implementation of the Insert method.
func (m *MockRawStore) Insert(ctx context.Context, envelope crawler.RawEnvelope) (bool, error) {
	args := m.Called(ctx, envelope)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}
