package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"certintake/internal/domain"
)

// MockSecretStore is a mock implementation of port.SecretStore.
type MockSecretStore struct {
	mock.Mock
}

func (m *MockSecretStore) Get(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// MockSenderWhitelist is a mock implementation of port.SenderWhitelist.
type MockSenderWhitelist struct {
	mock.Mock
}

func (m *MockSenderWhitelist) Contains(ctx context.Context, sender string) (bool, error) {
	args := m.Called(ctx, sender)
	return args.Bool(0), args.Error(1)
}

// MockShipmentVerifier is a mock implementation of port.ShipmentVerifier.
type MockShipmentVerifier struct {
	mock.Mock
}

func (m *MockShipmentVerifier) Exists(ctx context.Context, shipmentID string) (bool, error) {
	args := m.Called(ctx, shipmentID)
	return args.Bool(0), args.Error(1)
}

// MockMailParser is a mock implementation of port.MailParser.
type MockMailParser struct {
	mock.Mock
}

func (m *MockMailParser) Parse(raw []byte) (*domain.InboundMail, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InboundMail), args.Error(1)
}
