package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// SnapshotReader lists the live records of a shipment for reporting.
type SnapshotReader struct {
	repo         port.DocumentRepository
	documentType string
	now          func() time.Time
}

// NewSnapshotReader creates a SnapshotReader.
func NewSnapshotReader(repo port.DocumentRepository, documentType string) *SnapshotReader {
	return &SnapshotReader{repo: repo, documentType: documentType, now: time.Now}
}

// Snapshot reads every live record sharing shipmentID, regardless of certificate
// reference. The result is a copy and never reflects later writes.
func (s *SnapshotReader) Snapshot(ctx context.Context, shipmentID string) (*domain.ShipmentSnapshot, error) {
	ids, err := s.repo.FindByAttributes(ctx, domain.DocumentAttributes{
		DocumentType: s.documentType,
		ShipmentID:   shipmentID,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile.Snapshot: lookup: %w", err)
	}

	snap := &domain.ShipmentSnapshot{
		ShipmentID: shipmentID,
		TakenAt:    s.now().UTC(),
		Entries:    make([]domain.SnapshotEntry, 0, len(ids)),
	}
	for _, id := range ids {
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				continue
			}
			return nil, fmt.Errorf("reconcile.Snapshot: get %s: %w", id, err)
		}
		snap.Entries = append(snap.Entries, domain.SnapshotEntry{
			RecordID:             rec.ID,
			CertificateReference: rec.CertificateReference,
			Verified:             rec.Verified,
		})
	}
	return snap, nil
}
