package port

import (
	"context"

	"github.com/google/uuid"

	"certintake/internal/domain"
)

// DocumentAuditRepository defines the contract for reconciliation audit log persistence.
type DocumentAuditRepository interface {
	Create(ctx context.Context, entry *domain.DocumentAuditEntry) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.DocumentAuditEntry, error)
}
