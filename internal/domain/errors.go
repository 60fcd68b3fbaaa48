package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrDocumentCheckedOut     = errors.New("document is checked out by another writer")
	ErrVersionNotFound        = errors.New("document version not found")
	ErrInvalidAttachmentName  = errors.New("attachment name yields an empty certificate reference")
	ErrDuplicateAttachmentKey = errors.New("attachments share a certificate reference")
	ErrEmptyBatch             = errors.New("no attachments supplied")
	ErrInvalidShipmentID      = errors.New("shipment id is required")
	ErrSecretNotFound         = errors.New("secret not found")
	ErrCleanupFailed          = errors.New("failed to remove raw message from storage")
)

// InvalidAttachmentNameError reports an attachment whose name cannot produce a natural key.
type InvalidAttachmentNameError struct {
	AttachmentName string
	Err            error
}

func (e *InvalidAttachmentNameError) Error() string {
	return fmt.Sprintf("invalid attachment %q: %v", e.AttachmentName, e.Err)
}

func (e *InvalidAttachmentNameError) Unwrap() error { return e.Err }

// RepositoryWriteError is a technical fault reported by the document repository.
type RepositoryWriteError struct {
	Op             string
	AttachmentName string
	RecordID       uuid.UUID
	Err            error
}

func (e *RepositoryWriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "repository %s failed", e.Op)
	if e.AttachmentName != "" {
		fmt.Fprintf(&b, " for %q", e.AttachmentName)
	}
	if e.RecordID != uuid.Nil {
		fmt.Fprintf(&b, " (record %s)", e.RecordID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RepositoryWriteError) Unwrap() error { return e.Err }

// PartialBatchFailure is raised after a batch aborted on a technical fault and
// any already-applied records were rolled back.
type PartialBatchFailure struct {
	AttachmentName string
	Errors         []string
	RolledBack     int
	Cause          error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("technical error while storing %q (%d record(s) rolled back): %s",
		e.AttachmentName, e.RolledBack, strings.Join(e.Errors, "; "))
}

func (e *PartialBatchFailure) Unwrap() error { return e.Cause }

// IntakeError carries a categorized intake outcome to the notification layer.
type IntakeError struct {
	Kind    IntakeErrorKind
	Message string
	// MessageLocal is an optional translation shown alongside Message.
	MessageLocal string
	Err          error
}

func (e *IntakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *IntakeError) Unwrap() error { return e.Err }

// KindOf returns the intake kind of err, treating anything unclassified as technical.
func KindOf(err error) IntakeErrorKind {
	var ie *IntakeError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindTechnical
}
