package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// Config holds engine settings.
type Config struct {
	// DocumentType tags every record the engine reads or writes.
	DocumentType string
}

// Engine is the entry point for reconciling a shipment's attachments.
type Engine struct {
	upserter *Upserter
	rollback *RollbackExecutor
	snapshot *SnapshotReader
}

// NewEngine wires the reconciliation components around one repository.
// auditRepo may be nil.
func NewEngine(repo port.DocumentRepository, auditRepo port.DocumentAuditRepository, cfg Config) *Engine {
	docType := cfg.DocumentType
	if docType == "" {
		docType = domain.DocumentTypeIQCCertificate
	}
	resolver := NewResolver(repo, docType, auditRepo)
	return &Engine{
		upserter: NewUpserter(repo, resolver, docType, auditRepo),
		rollback: NewRollbackExecutor(repo, auditRepo),
		snapshot: NewSnapshotReader(repo, docType),
	}
}

// Snapshot returns the live records of a shipment. Call it before Reconcile to
// capture the pre-batch state.
func (e *Engine) Snapshot(ctx context.Context, shipmentID string) (*domain.ShipmentSnapshot, error) {
	if strings.TrimSpace(shipmentID) == "" {
		return nil, domain.ErrInvalidShipmentID
	}
	return e.snapshot.Snapshot(ctx, shipmentID)
}

// Reconcile stores attachments in order. The first technical failure stops the
// batch, every record written before it is rolled back, and a
// *domain.PartialBatchFailure is returned. Invalid attachment names reject the
// batch before anything is written.
func (e *Engine) Reconcile(ctx context.Context, shipmentID string, attachments []domain.Attachment) (*domain.ReconcileResult, error) {
	if strings.TrimSpace(shipmentID) == "" {
		return nil, domain.ErrInvalidShipmentID
	}
	if len(attachments) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	result := &domain.ReconcileResult{
		BatchID:    uuid.New(),
		ShipmentID: shipmentID,
		State:      domain.BatchRunning,
		Documents:  []domain.DocumentRef{},
		Outcomes:   make([]domain.BatchOutcome, 0, len(attachments)),
	}
	if err := validateBatch(shipmentID, attachments, result); err != nil {
		result.State = domain.BatchRejected
		return result, err
	}

	ctx = withBatchID(ctx, result.BatchID)
	log.Printf("reconcile.Reconcile: batch %s storing %d attachment(s) for shipment %s",
		result.BatchID, len(attachments), shipmentID)

	var (
		failedName string
		cause      error
		// written holds only records this batch wrote that still exist.
		written []domain.DocumentRef
	)
	for _, att := range attachments {
		res, err := e.upserter.Upsert(ctx, att, shipmentID)
		if res != nil {
			ref := domain.DocumentRef{
				RecordID:             res.RecordID,
				ShipmentID:           shipmentID,
				AttachmentName:       att.Name,
				CertificateReference: res.Key.CertificateReference,
				Created:              res.Created,
				Verified:             true,
			}
			result.Documents = append(result.Documents, ref)
			if res.WrittenID != uuid.Nil {
				own := ref
				own.RecordID = res.WrittenID
				written = append(written, own)
			}
			if err == nil {
				result.Outcomes = append(result.Outcomes, outcomeFor(ref))
			}
		}
		if err != nil {
			log.Printf("reconcile.Reconcile: batch %s failed on %s: %v", result.BatchID, att.Name, err)
			result.Errors = append(result.Errors, fmt.Sprintf(
				"There was an issue when trying to store document '%s' in the system. Please try again; if the error occurs again contact the customs team.",
				att.Name))
			outcome := domain.BatchOutcome{AttachmentName: att.Name, Status: domain.OutcomeFailed, Error: err.Error()}
			if res != nil {
				outcome.CertificateReference = res.Key.CertificateReference
				outcome.RecordID = res.RecordID
			}
			result.Outcomes = append(result.Outcomes, outcome)
			failedName, cause = att.Name, err
			break
		}
	}

	if len(result.Errors) == 0 {
		result.State = domain.BatchCommitted
		log.Printf("reconcile.Reconcile: batch %s committed %d document(s)", result.BatchID, len(result.Documents))
		return result, nil
	}

	result.State = domain.BatchRolledBack
	undone := 0
	if len(written) > 0 {
		undone = e.rollback.Rollback(ctx, written).Undone()
	}
	return result, &domain.PartialBatchFailure{
		AttachmentName: failedName,
		Errors:         result.Errors,
		RolledBack:     undone,
		Cause:          cause,
	}
}

// validateBatch builds every natural key up front so that a bad name never
// leaves the repository half written.
func validateBatch(shipmentID string, attachments []domain.Attachment, result *domain.ReconcileResult) error {
	var errs []error
	seen := make(map[string]string, len(attachments))
	for _, att := range attachments {
		key, err := BuildKey(att.Name, shipmentID)
		if err == nil {
			if first, dup := seen[key.CertificateReference]; dup {
				err = &domain.InvalidAttachmentNameError{
					AttachmentName: att.Name,
					Err:            fmt.Errorf("%w: %q and %q", domain.ErrDuplicateAttachmentKey, first, att.Name),
				}
			} else {
				seen[key.CertificateReference] = att.Name
			}
		}
		if err != nil {
			errs = append(errs, err)
			result.Outcomes = append(result.Outcomes, domain.BatchOutcome{
				AttachmentName:       att.Name,
				CertificateReference: key.CertificateReference,
				Status:               domain.OutcomeFailed,
				Error:                err.Error(),
			})
			result.Errors = append(result.Errors, err.Error())
		}
	}
	return errors.Join(errs...)
}

func outcomeFor(ref domain.DocumentRef) domain.BatchOutcome {
	status := domain.OutcomeUpdated
	if ref.Created {
		status = domain.OutcomeCreated
	}
	return domain.BatchOutcome{
		AttachmentName:       ref.AttachmentName,
		CertificateReference: ref.CertificateReference,
		RecordID:             ref.RecordID,
		Status:               status,
	}
}
