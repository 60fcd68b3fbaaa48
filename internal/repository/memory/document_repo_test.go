package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certintake/internal/domain"
	"certintake/internal/repository/memory"
)

func certFields(ref, payload string) *domain.DocumentFields {
	return &domain.DocumentFields{
		DocumentType:         domain.DocumentTypeIQCCertificate,
		ShipmentID:           "S100",
		CertificateReference: ref,
		Payload:              []byte(payload),
		Checksum:             domain.PayloadChecksum([]byte(payload)),
		Verified:             true,
	}
}

func TestDocumentRepo_UpdateRequiresCheckout(t *testing.T) {
	repo := memory.NewDocumentRepo()
	ctx := context.Background()

	id, err := repo.Create(ctx, certFields("CERT-1", "A"))
	require.NoError(t, err)

	applied, err := repo.Update(ctx, id, certFields("CERT-1", "B"))
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, repo.Checkout(ctx, id))
	assert.ErrorIs(t, repo.Checkout(ctx, id), domain.ErrDocumentCheckedOut)

	applied, err = repo.Update(ctx, id, certFields("CERT-1", "B"))
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, repo.Checkin(ctx, id))

	version, err := repo.LatestVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestDocumentRepo_RevertToVersion(t *testing.T) {
	repo := memory.NewDocumentRepo()
	ctx := context.Background()

	id, err := repo.Create(ctx, certFields("CERT-1", "A"))
	require.NoError(t, err)
	for _, payload := range []string{"B", "C"} {
		require.NoError(t, repo.Checkout(ctx, id))
		_, err = repo.Update(ctx, id, certFields("CERT-1", payload))
		require.NoError(t, err)
		require.NoError(t, repo.Checkin(ctx, id))
	}

	require.NoError(t, repo.RevertToVersion(ctx, id, 2))
	rec, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, []byte("B"), rec.Payload)

	assert.ErrorIs(t, repo.RevertToVersion(ctx, id, 3), domain.ErrVersionNotFound)
}

func TestDocumentRepo_DeleteHidesRecord(t *testing.T) {
	repo := memory.NewDocumentRepo()
	ctx := context.Background()

	first, err := repo.Create(ctx, certFields("CERT-1", "A"))
	require.NoError(t, err)
	second, err := repo.Create(ctx, certFields("CERT-1", "B"))
	require.NoError(t, err)

	ids, err := repo.FindByAttributes(ctx, domain.DocumentAttributes{ShipmentID: "S100", CertificateReference: "CERT-1"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)

	require.NoError(t, repo.Delete(ctx, first))

	ids, err = repo.FindByAttributes(ctx, domain.DocumentAttributes{ShipmentID: "S100"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second}, ids)

	_, err = repo.Get(ctx, first)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, first), domain.ErrDocumentNotFound)
	assert.Len(t, repo.Records(), 2)
}

func TestDocumentRepo_GetReturnsCopy(t *testing.T) {
	repo := memory.NewDocumentRepo()
	ctx := context.Background()

	id, err := repo.Create(ctx, certFields("CERT-1", "A"))
	require.NoError(t, err)

	rec, err := repo.Get(ctx, id)
	require.NoError(t, err)
	rec.Payload[0] = 'Z'

	again, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), again.Payload)
}

func TestAuditRepo_ListByBatch(t *testing.T) {
	repo := memory.NewAuditRepo()
	ctx := context.Background()
	batch := uuid.New()

	require.NoError(t, repo.Create(ctx, &domain.DocumentAuditEntry{BatchID: batch, Action: string(domain.AuditDocumentCreated)}))
	require.NoError(t, repo.Create(ctx, &domain.DocumentAuditEntry{BatchID: uuid.New(), Action: string(domain.AuditDocumentUpdated)}))

	entries, err := repo.ListByBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.AuditDocumentCreated), entries[0].Action)
	assert.False(t, entries[0].CreatedAt.IsZero())
}
