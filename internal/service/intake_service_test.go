package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certintake/internal/domain"
	"certintake/internal/email"
	"certintake/internal/port"
	"certintake/internal/secrets"
	"certintake/internal/service"
	"certintake/mocks"
)

const (
	bucket     = "mail"
	pendingKey = "to_process/import_iqc/msg-1.eml"
)

type intakeFixture struct {
	storage    *mocks.MockObjectStorage
	parser     *mocks.MockMailParser
	whitelist  *mocks.MockSenderWhitelist
	shipments  *mocks.MockShipmentVerifier
	reconciler *mocks.MockDocumentReconciler
	notifier   *mocks.MockNotifier
	svc        service.IntakeService
}

func newIntakeFixture() *intakeFixture {
	return newIntakeFixtureWithSecrets(secrets.NewStaticStore(map[string]string{
		secrets.IntakeAddress:          "intake@example.com",
		secrets.CCTNotificationAddress: "cct@example.com",
		secrets.OpsNotificationAddress: "ops@example.com",
	}))
}

func newIntakeFixtureWithSecrets(store port.SecretStore) *intakeFixture {
	f := &intakeFixture{
		storage:    new(mocks.MockObjectStorage),
		parser:     new(mocks.MockMailParser),
		whitelist:  new(mocks.MockSenderWhitelist),
		shipments:  new(mocks.MockShipmentVerifier),
		reconciler: new(mocks.MockDocumentReconciler),
		notifier:   new(mocks.MockNotifier),
	}
	f.svc = service.NewIntakeService(f.storage, f.parser, f.whitelist, f.shipments, f.reconciler, f.notifier, store,
		service.IntakeConfig{
			Bucket:          bucket,
			PendingPrefix:   "to_process/import_iqc/",
			TechnicalPrefix: "technical_errors/import_iqc/",
			ReceiptsPrefix:  "receipts/import_iqc/",
		})
	return f
}

func (f *intakeFixture) assertAll(t *testing.T) {
	t.Helper()
	f.storage.AssertExpectations(t)
	f.parser.AssertExpectations(t)
	f.whitelist.AssertExpectations(t)
	f.shipments.AssertExpectations(t)
	f.reconciler.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

var raw = []byte("raw message")

func validMail() *domain.InboundMail {
	return &domain.InboundMail{
		Sender:     "Broker@Example.com",
		Subject:    "SHP-1",
		ShipmentID: "SHP-1",
		Valid:      true,
		Attachments: []domain.Attachment{
			{Name: "CERT-1.pdf", Payload: []byte("A")},
		},
	}
}

func TestProcessMessage_Success(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()
	snapshot := &domain.ShipmentSnapshot{ShipmentID: "SHP-1", Entries: []domain.SnapshotEntry{{CertificateReference: "OLD-1"}}}
	result := &domain.ReconcileResult{
		BatchID:    uuid.New(),
		ShipmentID: "SHP-1",
		State:      domain.BatchCommitted,
		Documents:  []domain.DocumentRef{{RecordID: uuid.New(), AttachmentName: "CERT-1.pdf", CertificateReference: "CERT-1", Created: true}},
		Outcomes:   []domain.BatchOutcome{{AttachmentName: "CERT-1.pdf", Status: domain.OutcomeCreated}},
	}

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.shipments.On("Exists", mock.Anything, "SHP-1").Return(true, nil)
	f.reconciler.On("Snapshot", mock.Anything, "SHP-1").Return(snapshot, nil)
	f.reconciler.On("Reconcile", mock.Anything, "SHP-1", msg.Attachments).Return(result, nil)
	receiptKey := "receipts/import_iqc/SHP-1/" + result.BatchID.String() + ".csv"
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == receiptKey && in.ContentType == "text/csv"
	})).Return(&port.UploadOutput{}, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		data, ok := n.Data.(email.ReceiptData)
		return ok && n.Kind == domain.NotifyReceipt &&
			n.From == "intake@example.com" &&
			assert.ObjectsAreEqual([]string{"Broker@Example.com"}, n.To) &&
			assert.ObjectsAreEqual([]string{"cct@example.com"}, n.Cc) &&
			len(data.Documents) == 1 && len(data.Existing) == 1
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Empty(t, out.Kind)
	assert.Equal(t, receiptKey, out.ReceiptKey)
	assert.Same(t, result, out.Result)
	f.assertAll(t)
}

func TestProcessMessage_UnknownSender(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(false, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		data, ok := n.Data.(email.RejectionData)
		return ok && n.Kind == domain.NotifyUnknownSender &&
			assert.ObjectsAreEqual([]string{"Broker@Example.com"}, n.To) &&
			data.MessageLocal != ""
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Equal(t, domain.KindUnknownSender, out.Kind)
	f.reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestProcessMessage_InvalidStructure(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()
	msg.Valid = false
	msg.InvalidReason = "No attachments were found in the email."

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		data, ok := n.Data.(email.RejectionData)
		return ok && n.Kind == domain.NotifyInvalidInput &&
			data.Message == "No attachments were found in the email. See instructions below."
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Equal(t, domain.KindInvalidInput, out.Kind)
	f.shipments.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestProcessMessage_UnknownShipment(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.shipments.On("Exists", mock.Anything, "SHP-1").Return(false, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyInvalidInput
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Equal(t, domain.KindInvalidInput, out.Kind)
	assert.Contains(t, out.Message, "'SHP-1' cannot be found")
	f.reconciler.AssertNotCalled(t, "Snapshot", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestProcessMessage_InvalidAttachmentName(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()
	result := &domain.ReconcileResult{State: domain.BatchRejected, Errors: []string{`invalid attachment ".pdf"`}}
	nameErr := &domain.InvalidAttachmentNameError{AttachmentName: ".pdf", Err: domain.ErrInvalidAttachmentName}

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.shipments.On("Exists", mock.Anything, "SHP-1").Return(true, nil)
	f.reconciler.On("Snapshot", mock.Anything, "SHP-1").Return(&domain.ShipmentSnapshot{}, nil)
	f.reconciler.On("Reconcile", mock.Anything, "SHP-1", msg.Attachments).Return(result, errors.Join(nameErr))
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyInvalidInput
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Equal(t, domain.KindInvalidInput, out.Kind)
	assert.Contains(t, out.Message, `invalid attachment ".pdf"`)
	f.assertAll(t)
}

func TestProcessMessage_ParseFailureGoesToManualReview(t *testing.T) {
	f := newIntakeFixture()

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(nil, errors.New("malformed MIME header"))
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		data, ok := n.Data.(email.ManualReviewData)
		return ok && n.Kind == domain.NotifyManualReview &&
			assert.ObjectsAreEqual([]string{"ops@example.com"}, n.To) &&
			len(n.Cc) == 0 &&
			strings.Contains(data.Reason, "malformed MIME header")
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.NoError(t, err)
	assert.Equal(t, domain.KindManualReview, out.Kind)
	f.assertAll(t)
}

func TestProcessMessage_PartialBatchFailureIsTechnical(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()
	failure := &domain.PartialBatchFailure{
		AttachmentName: "CERT-1.pdf",
		Errors:         []string{"There was an issue when trying to store document 'CERT-1.pdf' in the system."},
		Cause:          &domain.RepositoryWriteError{Op: "create", Err: errors.New("db down")},
	}

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.shipments.On("Exists", mock.Anything, "SHP-1").Return(true, nil)
	f.reconciler.On("Snapshot", mock.Anything, "SHP-1").Return(&domain.ShipmentSnapshot{}, nil)
	f.reconciler.On("Reconcile", mock.Anything, "SHP-1", msg.Attachments).
		Return(&domain.ReconcileResult{State: domain.BatchRolledBack}, failure)
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "technical_errors/import_iqc/msg-1.eml" && in.ContentType == "message/rfc822"
	})).Return(&port.UploadOutput{}, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		data, ok := n.Data.(email.TechnicalErrorData)
		return ok && n.Kind == domain.NotifyTechnicalError &&
			assert.ObjectsAreEqual([]string{"ops@example.com"}, n.To) &&
			len(data.Errors) == 1
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	require.Error(t, err)
	var pbf *domain.PartialBatchFailure
	assert.ErrorAs(t, err, &pbf)
	assert.Equal(t, domain.KindTechnical, out.Kind)
	f.assertAll(t)
}

func TestProcessMessage_CleanupFailure(t *testing.T) {
	f := newIntakeFixture()

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(nil, errors.New("unreadable"))
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(errors.New("access denied"))

	_, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	assert.ErrorIs(t, err, domain.ErrCleanupFailed)
	f.assertAll(t)
}

func TestProcessMessage_DownloadFailureLeavesMessage(t *testing.T) {
	f := newIntakeFixture()
	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(nil, errors.New("timeout"))

	_, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	assert.ErrorContains(t, err, "timeout")
	f.storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessMessage_BareKeyIsResolvedUnderPendingPrefix(t *testing.T) {
	f := newIntakeFixture()
	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(nil, errors.New("gone"))

	out, err := f.svc.ProcessMessage(context.Background(), "msg-1.eml")

	assert.Error(t, err)
	assert.Equal(t, pendingKey, out.Key)
	f.storage.AssertExpectations(t)
}

func TestProcessMessage_RejectionNotifyFailureIsTechnical(t *testing.T) {
	f := newIntakeFixture()
	msg := validMail()

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(false, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyUnknownSender
	})).Return(errors.New("ses throttled"))
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyTechnicalError
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	assert.ErrorContains(t, err, "ses throttled")
	assert.Equal(t, domain.KindTechnical, out.Kind)
	f.assertAll(t)
}

func TestProcessMessage_MissingReceiptAddressIsTechnical(t *testing.T) {
	store := new(mocks.MockSecretStore)
	store.On("Get", mock.Anything, secrets.IntakeAddress).Return("intake@example.com", nil)
	store.On("Get", mock.Anything, secrets.CCTNotificationAddress).Return("", domain.ErrSecretNotFound)
	store.On("Get", mock.Anything, secrets.OpsNotificationAddress).Return("ops@example.com", nil)

	f := newIntakeFixtureWithSecrets(store)
	msg := validMail()
	result := &domain.ReconcileResult{BatchID: uuid.New(), ShipmentID: "SHP-1", State: domain.BatchCommitted}

	f.storage.On("Download", mock.Anything, bucket, pendingKey).Return(raw, nil)
	f.parser.On("Parse", raw).Return(msg, nil)
	f.whitelist.On("Contains", mock.Anything, "broker@example.com").Return(true, nil)
	f.shipments.On("Exists", mock.Anything, "SHP-1").Return(true, nil)
	f.reconciler.On("Snapshot", mock.Anything, "SHP-1").Return(&domain.ShipmentSnapshot{ShipmentID: "SHP-1"}, nil)
	f.reconciler.On("Reconcile", mock.Anything, "SHP-1", msg.Attachments).Return(result, nil)
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.ContentType == "text/csv"
	})).Return(&port.UploadOutput{}, nil)
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "technical_errors/import_iqc/msg-1.eml"
	})).Return(&port.UploadOutput{}, nil)
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyTechnicalError && assert.ObjectsAreEqual([]string{"ops@example.com"}, n.To)
	})).Return(nil)
	f.storage.On("Delete", mock.Anything, bucket, pendingKey).Return(nil)

	out, err := f.svc.ProcessMessage(context.Background(), pendingKey)

	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.Equal(t, domain.KindTechnical, out.Kind)
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.MatchedBy(func(n port.Notification) bool {
		return n.Kind == domain.NotifyReceipt
	}))
	store.AssertExpectations(t)
	f.assertAll(t)
}
