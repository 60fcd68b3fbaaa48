package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"certintake/internal/domain"
	"certintake/internal/port"
)

type documentAuditRepo struct {
	db *sqlx.DB
}

// NewDocumentAuditRepo creates a new PostgreSQL-backed DocumentAuditRepository.
func NewDocumentAuditRepo(db *sqlx.DB) port.DocumentAuditRepository {
	return &documentAuditRepo{db: db}
}

func (r *documentAuditRepo) Create(ctx context.Context, entry *domain.DocumentAuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO certificate_audit_log (id, batch_id, document_id, shipment_id, certificate_reference, action, changes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.BatchID, entry.DocumentID, entry.ShipmentID, entry.CertificateReference, entry.Action, entry.Changes)
	if err != nil {
		return fmt.Errorf("documentAuditRepo.Create: %w", err)
	}
	return nil
}

func (r *documentAuditRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.DocumentAuditEntry, error) {
	var entries []domain.DocumentAuditEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM certificate_audit_log WHERE batch_id = $1 ORDER BY created_at ASC`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("documentAuditRepo.ListByBatch: %w", err)
	}
	return entries, nil
}
