package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"certintake/internal/domain"
)

// MockDocumentRepo is a mock implementation of port.DocumentRepository.
type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) FindByAttributes(ctx context.Context, attrs domain.DocumentAttributes) ([]uuid.UUID, error) {
	args := m.Called(ctx, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockDocumentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.DocumentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentRecord), args.Error(1)
}

func (m *MockDocumentRepo) Create(ctx context.Context, fields *domain.DocumentFields) (uuid.UUID, error) {
	args := m.Called(ctx, fields)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockDocumentRepo) Update(ctx context.Context, id uuid.UUID, fields *domain.DocumentFields) (bool, error) {
	args := m.Called(ctx, id, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockDocumentRepo) Checkout(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepo) Checkin(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepo) LatestVersion(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepo) RevertToVersion(ctx context.Context, id uuid.UUID, version int) error {
	args := m.Called(ctx, id, version)
	return args.Error(0)
}
