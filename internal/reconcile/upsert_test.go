package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certintake/internal/domain"
	"certintake/internal/port"
	"certintake/internal/reconcile"
	"certintake/mocks"
)

var cert1Attrs = domain.DocumentAttributes{
	DocumentType:         domain.DocumentTypeIQCCertificate,
	ShipmentID:           "S100",
	CertificateReference: "CERT-1",
}

func newUpserter(repo *mocks.MockDocumentRepo, audit port.DocumentAuditRepository) *reconcile.Upserter {
	resolver := reconcile.NewResolver(repo, domain.DocumentTypeIQCCertificate, audit)
	return reconcile.NewUpserter(repo, resolver, domain.DocumentTypeIQCCertificate, audit)
}

func TestUpsert_CreatesWhenNoRecordExists(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	audit := new(mocks.MockDocumentAuditRepo)
	id := uuid.New()

	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{}, nil).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(f *domain.DocumentFields) bool {
		return f.CertificateReference == "CERT-1" && f.Verified && !f.CheckedOut &&
			f.Filename == "CERT-1.pdf" && f.Checksum == domain.PayloadChecksum([]byte("A"))
	})).Return(id, nil)
	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{id}, nil).Once()
	audit.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.DocumentAuditEntry) bool {
		return e.DocumentID == id && e.Action == string(domain.AuditDocumentCreated)
	})).Return(nil)

	res, err := newUpserter(repo, audit).Upsert(context.Background(), domain.Attachment{Name: "CERT-1.pdf", Payload: []byte("A")}, "S100")
	require.NoError(t, err)

	assert.Equal(t, id, res.RecordID)
	assert.Equal(t, id, res.WrittenID)
	assert.True(t, res.Created)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything)
	audit.AssertExpectations(t)
}

func TestUpsert_UpdatesUnderCheckout(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	audit := new(mocks.MockDocumentAuditRepo)
	id := uuid.New()

	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{id}, nil)
	repo.On("Checkout", mock.Anything, id).Return(nil).Once()
	repo.On("Update", mock.Anything, id, mock.MatchedBy(func(f *domain.DocumentFields) bool {
		return string(f.Payload) == "A2" && f.Verified && f.DocumentType == domain.DocumentTypeIQCCertificate
	})).Return(true, nil).Once()
	repo.On("Checkin", mock.Anything, id).Return(nil).Once()
	audit.On("Create", mock.Anything, mock.Anything).Return(errors.New("audit table missing"))

	res, err := newUpserter(repo, audit).Upsert(context.Background(), domain.Attachment{Name: "CERT-1.pdf", Payload: []byte("A2")}, "S100")
	require.NoError(t, err)

	assert.Equal(t, id, res.RecordID)
	assert.False(t, res.Created)
	repo.AssertExpectations(t)
}

func TestUpsert_ReportsRecordFromFollowUpLookup(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	written, current := uuid.New(), uuid.New()

	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{}, nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(written, nil)
	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{current}, nil).Once()

	res, err := newUpserter(repo, nil).Upsert(context.Background(), domain.Attachment{Name: "CERT-1.pdf"}, "S100")
	require.NoError(t, err)
	assert.Equal(t, current, res.RecordID)
	assert.Equal(t, uuid.Nil, res.WrittenID)
}

func TestUpsert_LookupFailureNamesAttachment(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return(nil, errors.New("connection reset"))

	res, err := newUpserter(repo, nil).Upsert(context.Background(), domain.Attachment{Name: "CERT-1.pdf"}, "S100")
	assert.Nil(t, res)

	var writeErr *domain.RepositoryWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "lookup", writeErr.Op)
	assert.Equal(t, "CERT-1.pdf", writeErr.AttachmentName)
}

func TestResolve_KeepsOldestAndDeletesRest(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	oldest, dupA, dupB := uuid.New(), uuid.New(), uuid.New()
	repo.On("FindByAttributes", mock.Anything, cert1Attrs).Return([]uuid.UUID{oldest, dupA, dupB}, nil)
	repo.On("Delete", mock.Anything, dupA).Return(nil)
	repo.On("Delete", mock.Anything, dupB).Return(nil)

	resolver := reconcile.NewResolver(repo, domain.DocumentTypeIQCCertificate, nil)
	id, found, err := resolver.Resolve(context.Background(), domain.NaturalKey{ShipmentID: "S100", CertificateReference: "CERT-1"})
	require.NoError(t, err)

	assert.True(t, found)
	assert.Equal(t, oldest, id)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Delete", mock.Anything, oldest)
}

func TestSnapshot_SkipsRecordsDeletedMidRead(t *testing.T) {
	repo := new(mocks.MockDocumentRepo)
	kept, gone := uuid.New(), uuid.New()
	repo.On("FindByAttributes", mock.Anything, domain.DocumentAttributes{
		DocumentType: domain.DocumentTypeIQCCertificate,
		ShipmentID:   "S100",
	}).Return([]uuid.UUID{kept, gone}, nil)
	repo.On("Get", mock.Anything, kept).Return(&domain.DocumentRecord{ID: kept, CertificateReference: "CERT-1", Verified: true}, nil)
	repo.On("Get", mock.Anything, gone).Return(nil, domain.ErrDocumentNotFound)

	snap, err := reconcile.NewSnapshotReader(repo, domain.DocumentTypeIQCCertificate).Snapshot(context.Background(), "S100")
	require.NoError(t, err)

	require.Len(t, snap.Entries, 1)
	assert.Equal(t, domain.SnapshotEntry{RecordID: kept, CertificateReference: "CERT-1", Verified: true}, snap.Entries[0])
}
