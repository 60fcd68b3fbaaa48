package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// AuditRepo is an in-memory port.DocumentAuditRepository.
type AuditRepo struct {
	mu      sync.Mutex
	entries []domain.DocumentAuditEntry
}

var _ port.DocumentAuditRepository = (*AuditRepo)(nil)

// NewAuditRepo creates an empty in-memory audit log.
func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Create(_ context.Context, entry *domain.DocumentAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *AuditRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.DocumentAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.DocumentAuditEntry
	for _, e := range r.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}
