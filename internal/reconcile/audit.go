package reconcile

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

type batchIDKey struct{}

func withBatchID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

func batchIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(batchIDKey{}).(uuid.UUID)
	return id
}

// auditor appends engine mutations to the audit log. Failures are logged but
// never block reconciliation.
type auditor struct {
	repo port.DocumentAuditRepository
}

func (a *auditor) record(ctx context.Context, docID uuid.UUID, key domain.NaturalKey, action domain.AuditAction, changes map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	raw := json.RawMessage("{}")
	if changes != nil {
		if b, err := json.Marshal(changes); err == nil {
			raw = b
		}
	}
	entry := &domain.DocumentAuditEntry{
		ID:                   uuid.New(),
		BatchID:              batchIDFrom(ctx),
		DocumentID:           docID,
		ShipmentID:           key.ShipmentID,
		CertificateReference: key.CertificateReference,
		Action:               string(action),
		Changes:              raw,
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		log.Printf("reconcile.audit: failed to write audit entry for %s/%s: %v", action, docID, err)
	}
}
