package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Attachment is a named payload supplied by the caller for one reconciliation.
type Attachment struct {
	Name    string `json:"name"`
	Payload []byte `json:"-"`
}

// NaturalKey identifies a logical document independent of its storage id.
type NaturalKey struct {
	ShipmentID           string `json:"shipment_id"`
	CertificateReference string `json:"certificate_reference"`
}

// DocumentFields are the writable attributes of a document record.
type DocumentFields struct {
	DocumentType         string
	ShipmentID           string
	CertificateReference string
	Filename             string
	Payload              []byte
	Checksum             string
	Verified             bool
	CheckedOut           bool
}

// DocumentRecord is a document as persisted by the repository.
type DocumentRecord struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	DocumentType         string     `db:"document_type" json:"document_type"`
	ShipmentID           string     `db:"shipment_id" json:"shipment_id"`
	CertificateReference string     `db:"certificate_reference" json:"certificate_reference"`
	Filename             string     `db:"filename" json:"filename"`
	Payload              []byte     `db:"payload" json:"-"`
	Checksum             string     `db:"checksum" json:"checksum"`
	Verified             bool       `db:"verified" json:"verified"`
	Version              int        `db:"version" json:"version"`
	CheckedOut           bool       `db:"checked_out" json:"checked_out"`
	DeletedAt            *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Key returns the record's natural key.
func (r *DocumentRecord) Key() NaturalKey {
	return NaturalKey{ShipmentID: r.ShipmentID, CertificateReference: r.CertificateReference}
}

// DocumentVersion is a historical copy of a record at a given version.
type DocumentVersion struct {
	DocumentID           uuid.UUID `db:"document_id"`
	Version              int       `db:"version"`
	DocumentType         string    `db:"document_type"`
	ShipmentID           string    `db:"shipment_id"`
	CertificateReference string    `db:"certificate_reference"`
	Filename             string    `db:"filename"`
	Payload              []byte    `db:"payload"`
	Checksum             string    `db:"checksum"`
	Verified             bool      `db:"verified"`
	CreatedAt            time.Time `db:"created_at"`
}

// DocumentAttributes filters document lookups. Empty fields are unconstrained.
type DocumentAttributes struct {
	DocumentType         string
	ShipmentID           string
	CertificateReference string
}

// DocumentRef is a record touched by a reconciliation batch.
type DocumentRef struct {
	RecordID             uuid.UUID `json:"record_id"`
	ShipmentID           string    `json:"shipment_id"`
	AttachmentName       string    `json:"attachment_name"`
	CertificateReference string    `json:"certificate_reference"`
	Created              bool      `json:"created"`
	Verified             bool      `json:"verified"`
}

// BatchOutcome is the per-attachment result of a reconciliation.
type BatchOutcome struct {
	AttachmentName       string        `json:"attachment_name"`
	CertificateReference string        `json:"certificate_reference"`
	RecordID             uuid.UUID     `json:"record_id"`
	Status               OutcomeStatus `json:"status"`
	Error                string        `json:"error,omitempty"`
}

// ReconcileResult is returned by a reconciliation, successful or not.
type ReconcileResult struct {
	BatchID    uuid.UUID      `json:"batch_id"`
	ShipmentID string         `json:"shipment_id"`
	State      BatchState     `json:"state"`
	Documents  []DocumentRef  `json:"documents"`
	Outcomes   []BatchOutcome `json:"outcomes"`
	Errors     []string       `json:"errors"`
}

// SnapshotEntry is one existing record sharing a shipment id.
type SnapshotEntry struct {
	RecordID             uuid.UUID `json:"record_id"`
	CertificateReference string    `json:"certificate_reference"`
	Verified             bool      `json:"verified"`
}

// ShipmentSnapshot is a point-in-time, read-only view of a shipment's records.
type ShipmentSnapshot struct {
	ShipmentID string          `json:"shipment_id"`
	TakenAt    time.Time       `json:"taken_at"`
	Entries    []SnapshotEntry `json:"entries"`
}

// DocumentAuditEntry records a single mutation made during reconciliation.
type DocumentAuditEntry struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	BatchID              uuid.UUID       `db:"batch_id" json:"batch_id"`
	DocumentID           uuid.UUID       `db:"document_id" json:"document_id"`
	ShipmentID           string          `db:"shipment_id" json:"shipment_id"`
	CertificateReference string          `db:"certificate_reference" json:"certificate_reference"`
	Action               string          `db:"action" json:"action"`
	Changes              json.RawMessage `db:"changes" json:"changes"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// InboundMail is the parsed form of a raw certificate email.
type InboundMail struct {
	Sender        string
	Subject       string
	Body          string
	ShipmentID    string
	Attachments   []Attachment
	Valid         bool
	InvalidReason string
}

// ObjectInfo describes a stored object returned by a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
