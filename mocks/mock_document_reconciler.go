package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"certintake/internal/domain"
)

// MockDocumentReconciler is a mock implementation of service.DocumentReconciler.
type MockDocumentReconciler struct {
	mock.Mock
}

func (m *MockDocumentReconciler) Snapshot(ctx context.Context, shipmentID string) (*domain.ShipmentSnapshot, error) {
	args := m.Called(ctx, shipmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShipmentSnapshot), args.Error(1)
}

func (m *MockDocumentReconciler) Reconcile(ctx context.Context, shipmentID string, attachments []domain.Attachment) (*domain.ReconcileResult, error) {
	args := m.Called(ctx, shipmentID, attachments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconcileResult), args.Error(1)
}
