package port

import (
	"context"

	"github.com/google/uuid"

	"certintake/internal/domain"
)

// DocumentRepository is the document store the reconciliation engine writes to.
// Lookups never return soft-deleted records.
type DocumentRepository interface {
	// FindByAttributes returns matching record ids, oldest first.
	FindByAttributes(ctx context.Context, attrs domain.DocumentAttributes) ([]uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.DocumentRecord, error)
	// Create stores a new record at version 1 and returns its id.
	Create(ctx context.Context, fields *domain.DocumentFields) (uuid.UUID, error)
	// Update overwrites a checked-out record and bumps its version. It reports
	// false when the write was not applied.
	Update(ctx context.Context, id uuid.UUID, fields *domain.DocumentFields) (bool, error)
	Checkout(ctx context.Context, id uuid.UUID) error
	Checkin(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	LatestVersion(ctx context.Context, id uuid.UUID) (int, error)
	RevertToVersion(ctx context.Context, id uuid.UUID, version int) error
}
