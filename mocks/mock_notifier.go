package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"certintake/internal/port"
)

// MockNotifier is a mock implementation of port.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, n port.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
