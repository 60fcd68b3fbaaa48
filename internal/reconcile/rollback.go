package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// RollbackReport summarizes what a rollback did to each record.
type RollbackReport struct {
	Reverted []uuid.UUID
	Deleted  []uuid.UUID
	Failed   []uuid.UUID
}

// Undone returns the number of records successfully rolled back.
func (r RollbackReport) Undone() int {
	return len(r.Reverted) + len(r.Deleted)
}

// RollbackExecutor reverts records touched by a failed batch.
type RollbackExecutor struct {
	repo  port.DocumentRepository
	audit *auditor
}

// NewRollbackExecutor creates a RollbackExecutor.
func NewRollbackExecutor(repo port.DocumentRepository, audit port.DocumentAuditRepository) *RollbackExecutor {
	return &RollbackExecutor{repo: repo, audit: &auditor{repo: audit}}
}

// Rollback reverts each document to its previous version, or deletes it when it
// has none. It is best-effort: a failing record is logged and skipped.
func (r *RollbackExecutor) Rollback(ctx context.Context, docs []domain.DocumentRef) RollbackReport {
	// Cancellation of the caller must not leave a half-reverted batch.
	ctx = context.WithoutCancel(ctx)

	var report RollbackReport
	for _, doc := range docs {
		deleted, err := r.rollbackOne(ctx, doc)
		switch {
		case err != nil:
			log.Printf("reconcile.Rollback: failed to roll back %s (%s): %v", doc.RecordID, doc.AttachmentName, err)
			report.Failed = append(report.Failed, doc.RecordID)
		case deleted:
			report.Deleted = append(report.Deleted, doc.RecordID)
		default:
			report.Reverted = append(report.Reverted, doc.RecordID)
		}
	}
	log.Printf("reconcile.Rollback: reverted=%d deleted=%d failed=%d",
		len(report.Reverted), len(report.Deleted), len(report.Failed))
	return report
}

func (r *RollbackExecutor) rollbackOne(ctx context.Context, doc domain.DocumentRef) (deleted bool, err error) {
	version, err := r.repo.LatestVersion(ctx, doc.RecordID)
	if err != nil {
		return false, fmt.Errorf("latest version: %w", err)
	}

	key := domain.NaturalKey{ShipmentID: doc.ShipmentID, CertificateReference: doc.CertificateReference}
	if version > 1 {
		if err := r.repo.RevertToVersion(ctx, doc.RecordID, version-1); err != nil {
			return false, fmt.Errorf("revert to version %d: %w", version-1, err)
		}
		r.audit.record(ctx, doc.RecordID, key, domain.AuditRollbackReverted, map[string]any{"version": version - 1})
		return false, nil
	}

	if err := r.repo.Delete(ctx, doc.RecordID); err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	r.audit.record(ctx, doc.RecordID, key, domain.AuditRollbackDeleted, nil)
	return true, nil
}
