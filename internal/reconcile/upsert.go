package reconcile

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

var errUpdateNotApplied = errors.New("update was not applied")

// UpsertResult is the outcome of storing one attachment.
type UpsertResult struct {
	// RecordID is the live record for the key after the write.
	RecordID uuid.UUID
	// WrittenID is the record this call created or updated. It is uuid.Nil
	// when that record lost to an older duplicate and no longer exists.
	WrittenID uuid.UUID
	Key       domain.NaturalKey
	Created   bool
}

// Upserter stores one attachment, updating the existing record for its
// natural key or creating a new one.
type Upserter struct {
	repo         port.DocumentRepository
	resolver     *Resolver
	documentType string
	audit        *auditor
}

// NewUpserter creates an Upserter that resolves existing records through resolver.
func NewUpserter(repo port.DocumentRepository, resolver *Resolver, documentType string, audit port.DocumentAuditRepository) *Upserter {
	return &Upserter{
		repo:         repo,
		resolver:     resolver,
		documentType: documentType,
		audit:        &auditor{repo: audit},
	}
}

// Upsert writes att for shipmentID. A non-nil result together with an error
// means the write was applied but the follow-up lookup failed; the caller must
// still treat the record as touched.
func (u *Upserter) Upsert(ctx context.Context, att domain.Attachment, shipmentID string) (*UpsertResult, error) {
	key, err := BuildKey(att.Name, shipmentID)
	if err != nil {
		return nil, err
	}

	existing, found, err := u.resolver.Resolve(ctx, key)
	if err != nil {
		return nil, withAttachment(err, att.Name)
	}

	fields := &domain.DocumentFields{
		DocumentType:         u.documentType,
		ShipmentID:           key.ShipmentID,
		CertificateReference: key.CertificateReference,
		Filename:             att.Name,
		Payload:              att.Payload,
		Checksum:             domain.PayloadChecksum(att.Payload),
		Verified:             true,
	}

	written := existing
	if found {
		if err := u.update(ctx, existing, fields, att.Name); err != nil {
			return nil, err
		}
		u.audit.record(ctx, existing, key, domain.AuditDocumentUpdated, map[string]any{
			"filename": att.Name,
			"checksum": fields.Checksum,
		})
	} else {
		id, err := u.repo.Create(ctx, fields)
		if err != nil || id == uuid.Nil {
			if err == nil {
				err = errors.New("repository returned no id")
			}
			return nil, &domain.RepositoryWriteError{Op: "create", AttachmentName: att.Name, Err: err}
		}
		written = id
		u.audit.record(ctx, id, key, domain.AuditDocumentCreated, map[string]any{
			"filename": att.Name,
			"checksum": fields.Checksum,
		})
	}

	current, ok, err := u.resolver.Resolve(ctx, key)
	if err == nil && !ok {
		err = &domain.RepositoryWriteError{Op: "lookup", RecordID: written, Err: domain.ErrDocumentNotFound}
	}
	if err != nil {
		return &UpsertResult{RecordID: written, WrittenID: written, Key: key, Created: !found}, withAttachment(err, att.Name)
	}
	if current != written {
		log.Printf("reconcile.Upserter: record for %s/%s resolved to %s after writing %s",
			key.ShipmentID, key.CertificateReference, current, written)
		written = uuid.Nil
	}
	return &UpsertResult{RecordID: current, WrittenID: written, Key: key, Created: !found}, nil
}

func (u *Upserter) update(ctx context.Context, id uuid.UUID, fields *domain.DocumentFields, name string) error {
	if err := u.repo.Checkout(ctx, id); err != nil {
		return &domain.RepositoryWriteError{Op: "checkout", AttachmentName: name, RecordID: id, Err: err}
	}
	defer func() {
		if err := u.repo.Checkin(context.WithoutCancel(ctx), id); err != nil {
			log.Printf("reconcile.Upserter: failed to check in %s: %v", id, err)
		}
	}()

	applied, err := u.repo.Update(ctx, id, fields)
	if err == nil && !applied {
		err = errUpdateNotApplied
	}
	if err != nil {
		return &domain.RepositoryWriteError{Op: "update", AttachmentName: name, RecordID: id, Err: err}
	}
	return nil
}

// withAttachment names the attachment on a repository error that lacks one.
func withAttachment(err error, name string) error {
	var rwe *domain.RepositoryWriteError
	if errors.As(err, &rwe) && rwe.AttachmentName == "" {
		rwe.AttachmentName = name
	}
	return err
}
