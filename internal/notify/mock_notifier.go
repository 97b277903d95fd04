package notify

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the Notifier interface for testing.
type MockNotifier struct {
	mock.Mock
	Channel string
}

// Name returns the configured channel name.
func (m *MockNotifier) Name() string {
	return m.Channel
}

// Notify is the mock implementation of the Notify method.
func (m *MockNotifier) Notify(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0) //nolint:wrapcheck
}
