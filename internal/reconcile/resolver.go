package reconcile

import (
	"context"
	"log"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// Resolver finds the single live record for a natural key, deleting any
// extra records that share it.
type Resolver struct {
	repo         port.DocumentRepository
	documentType string
	audit        *auditor
}

// NewResolver creates a Resolver for records of the given document type.
func NewResolver(repo port.DocumentRepository, documentType string, audit port.DocumentAuditRepository) *Resolver {
	return &Resolver{repo: repo, documentType: documentType, audit: &auditor{repo: audit}}
}

// Resolve returns the canonical record id for key. The oldest match wins; the
// rest are deleted permanently as a data repair.
func (r *Resolver) Resolve(ctx context.Context, key domain.NaturalKey) (uuid.UUID, bool, error) {
	ids, err := r.repo.FindByAttributes(ctx, domain.DocumentAttributes{
		DocumentType:         r.documentType,
		ShipmentID:           key.ShipmentID,
		CertificateReference: key.CertificateReference,
	})
	if err != nil {
		return uuid.Nil, false, &domain.RepositoryWriteError{Op: "lookup", Err: err}
	}
	if len(ids) == 0 {
		return uuid.Nil, false, nil
	}

	canonical := ids[0]
	for _, dup := range ids[1:] {
		log.Printf("reconcile.Resolver: more than one record for shipment %s + certificate %s, deleting duplicate %s (keeping %s)",
			key.ShipmentID, key.CertificateReference, dup, canonical)
		if err := r.repo.Delete(ctx, dup); err != nil {
			return uuid.Nil, false, &domain.RepositoryWriteError{Op: "delete duplicate", RecordID: dup, Err: err}
		}
		r.audit.record(ctx, dup, key, domain.AuditDuplicateRemoved, map[string]any{"kept": canonical})
	}
	return canonical, true, nil
}
