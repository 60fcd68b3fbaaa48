// Package memory provides process-local implementations of the repository
// ports, used for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

type record struct {
	current  domain.DocumentRecord
	versions []domain.DocumentVersion
}

// DocumentRepo is an in-memory port.DocumentRepository.
type DocumentRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*record
	order   []uuid.UUID
	now     func() time.Time
}

var _ port.DocumentRepository = (*DocumentRepo)(nil)

// NewDocumentRepo creates an empty in-memory document repository.
func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{
		records: make(map[uuid.UUID]*record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *DocumentRepo) FindByAttributes(_ context.Context, attrs domain.DocumentAttributes) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := []uuid.UUID{}
	for _, id := range r.order {
		rec := r.records[id]
		if rec.current.DeletedAt != nil || !matches(&rec.current, attrs) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func matches(doc *domain.DocumentRecord, attrs domain.DocumentAttributes) bool {
	if attrs.DocumentType != "" && doc.DocumentType != attrs.DocumentType {
		return false
	}
	if attrs.ShipmentID != "" && doc.ShipmentID != attrs.ShipmentID {
		return false
	}
	if attrs.CertificateReference != "" && doc.CertificateReference != attrs.CertificateReference {
		return false
	}
	return true
}

func (r *DocumentRepo) Get(_ context.Context, id uuid.UUID) (*domain.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return nil, err
	}
	doc := rec.current
	doc.Payload = append([]byte(nil), rec.current.Payload...)
	return &doc, nil
}

func (r *DocumentRepo) Create(_ context.Context, fields *domain.DocumentFields) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := uuid.New()
	rec := &record{current: domain.DocumentRecord{
		ID:         id,
		Version:    1,
		CheckedOut: fields.CheckedOut,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	apply(&rec.current, fields)
	rec.versions = append(rec.versions, snapshotOf(&rec.current, now))
	r.records[id] = rec
	r.order = append(r.order, id)
	return id, nil
}

func (r *DocumentRepo) Update(_ context.Context, id uuid.UUID, fields *domain.DocumentFields) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return false, err
	}
	if !rec.current.CheckedOut {
		return false, nil
	}
	now := r.now()
	apply(&rec.current, fields)
	rec.current.Version++
	rec.current.UpdatedAt = now
	rec.versions = append(rec.versions, snapshotOf(&rec.current, now))
	return true, nil
}

func (r *DocumentRepo) Checkout(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return err
	}
	if rec.current.CheckedOut {
		return domain.ErrDocumentCheckedOut
	}
	rec.current.CheckedOut = true
	return nil
}

func (r *DocumentRepo) Checkin(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return err
	}
	rec.current.CheckedOut = false
	return nil
}

func (r *DocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return err
	}
	now := r.now()
	rec.current.DeletedAt = &now
	return nil
}

func (r *DocumentRepo) LatestVersion(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return 0, err
	}
	return rec.current.Version, nil
}

// RevertToVersion restores the content of version and discards newer versions.
func (r *DocumentRepo) RevertToVersion(_ context.Context, id uuid.UUID, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.live(id)
	if err != nil {
		return err
	}
	for i, v := range rec.versions {
		if v.Version != version {
			continue
		}
		rec.current.DocumentType = v.DocumentType
		rec.current.ShipmentID = v.ShipmentID
		rec.current.CertificateReference = v.CertificateReference
		rec.current.Filename = v.Filename
		rec.current.Payload = append([]byte(nil), v.Payload...)
		rec.current.Checksum = v.Checksum
		rec.current.Verified = v.Verified
		rec.current.Version = v.Version
		rec.current.UpdatedAt = r.now()
		rec.versions = rec.versions[:i+1]
		return nil
	}
	return domain.ErrVersionNotFound
}

// Seed inserts a record as-is, bypassing natural key handling. It exists to
// reproduce states the engine itself never creates, such as duplicate keys.
func (r *DocumentRepo) Seed(fields *domain.DocumentFields) uuid.UUID {
	id, _ := r.Create(context.Background(), fields)
	return id
}

// Records returns copies of every record, including deleted ones.
func (r *DocumentRepo) Records() []domain.DocumentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DocumentRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].current)
	}
	return out
}

func (r *DocumentRepo) live(id uuid.UUID) (*record, error) {
	rec, ok := r.records[id]
	if !ok || rec.current.DeletedAt != nil {
		return nil, domain.ErrDocumentNotFound
	}
	return rec, nil
}

func apply(doc *domain.DocumentRecord, fields *domain.DocumentFields) {
	doc.DocumentType = fields.DocumentType
	doc.ShipmentID = fields.ShipmentID
	doc.CertificateReference = fields.CertificateReference
	doc.Filename = fields.Filename
	doc.Payload = append([]byte(nil), fields.Payload...)
	doc.Checksum = fields.Checksum
	doc.Verified = fields.Verified
}

func snapshotOf(doc *domain.DocumentRecord, at time.Time) domain.DocumentVersion {
	return domain.DocumentVersion{
		DocumentID:           doc.ID,
		Version:              doc.Version,
		DocumentType:         doc.DocumentType,
		ShipmentID:           doc.ShipmentID,
		CertificateReference: doc.CertificateReference,
		Filename:             doc.Filename,
		Payload:              append([]byte(nil), doc.Payload...),
		Checksum:             doc.Checksum,
		Verified:             doc.Verified,
		CreatedAt:            at,
	}
}
