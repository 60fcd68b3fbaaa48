package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"certintake/internal/service"
)

// MockIntakeService is a mock implementation of service.IntakeService.
type MockIntakeService struct {
	mock.Mock
}

func (m *MockIntakeService) ProcessMessage(ctx context.Context, key string) (*service.IntakeOutcome, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IntakeOutcome), args.Error(1)
}
