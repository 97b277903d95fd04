package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// MockStore is a mock implementation of the Store interface for testing.
type MockStore struct {
	mock.Mock
}

// Load is the mock implementation of the Load method.
func (m *MockStore) Load(ctx context.Context) (*seen.State, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*seen.State)
	return st, args.Error(1) //nolint:wrapcheck
}

// Save is the mock implementation of the Save method.
func (m *MockStore) Save(ctx context.Context, state *seen.State) error {
	args := m.Called(ctx, state)
	return args.Error(0) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}

// Describe returns a fixed location.
func (m *MockStore) Describe() string {
	return "mock://"
}
