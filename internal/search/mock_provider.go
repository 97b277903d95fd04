package search

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
	Source Source
}

// Name returns the configured Source.
func (m *MockProvider) Name() Source {
	return m.Source
}

// Query is the mock implementation of the Query method.
func (m *MockProvider) Query(ctx context.Context, identifier, phrase string, limit int) ([]RawHit, error) {
	args := m.Called(ctx, identifier, phrase, limit)
	hits, _ := args.Get(0).([]RawHit)
	return hits, args.Error(1) //nolint:wrapcheck
}
