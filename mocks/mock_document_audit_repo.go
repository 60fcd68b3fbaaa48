package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"certintake/internal/domain"
)

// MockDocumentAuditRepo is a mock implementation of port.DocumentAuditRepository.
type MockDocumentAuditRepo struct {
	mock.Mock
}

func (m *MockDocumentAuditRepo) Create(ctx context.Context, entry *domain.DocumentAuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDocumentAuditRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.DocumentAuditEntry, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentAuditEntry), args.Error(1)
}
