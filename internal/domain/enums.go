package domain

// DocumentTypeIQCCertificate tags every record written by this workflow.
const DocumentTypeIQCCertificate = "IQC_CERTIFICATE"

// FileType represents the accepted attachment file types.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
}

// OutcomeStatus is the per-attachment status in a batch.
type OutcomeStatus string

const (
	OutcomeCreated OutcomeStatus = "created"
	OutcomeUpdated OutcomeStatus = "updated"
	OutcomeFailed  OutcomeStatus = "failed"
)

// BatchState tracks a reconciliation through RUNNING -> {COMMITTED, ROLLED_BACK}.
type BatchState string

const (
	BatchRunning    BatchState = "running"
	BatchCommitted  BatchState = "committed"
	BatchRolledBack BatchState = "rolled_back"
	BatchRejected   BatchState = "rejected"
)

// AuditAction names the mutation recorded in the audit log.
type AuditAction string

const (
	AuditDocumentCreated  AuditAction = "document.created"
	AuditDocumentUpdated  AuditAction = "document.updated"
	AuditDuplicateRemoved AuditAction = "document.duplicate_removed"
	AuditRollbackReverted AuditAction = "document.rollback_reverted"
	AuditRollbackDeleted  AuditAction = "document.rollback_deleted"
)

// IntakeErrorKind classifies an intake failure for the notification layer.
type IntakeErrorKind string

const (
	KindUnknownSender IntakeErrorKind = "unknown_sender"
	KindInvalidInput  IntakeErrorKind = "invalid_input"
	KindManualReview  IntakeErrorKind = "manual_review"
	KindTechnical     IntakeErrorKind = "technical"
)

// NotificationKind selects the template used for an outbound email.
type NotificationKind string

const (
	NotifyReceipt        NotificationKind = "receipt"
	NotifyUnknownSender  NotificationKind = "unknown_sender"
	NotifyInvalidInput   NotificationKind = "invalid_input"
	NotifyManualReview   NotificationKind = "manual_review"
	NotifyTechnicalError NotificationKind = "technical_error"
)
