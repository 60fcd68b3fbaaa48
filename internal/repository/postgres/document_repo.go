package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"certintake/internal/domain"
	"certintake/internal/port"
)

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) FindByAttributes(ctx context.Context, attrs domain.DocumentAttributes) ([]uuid.UUID, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("document_type", attrs.DocumentType)
	add("shipment_id", attrs.ShipmentID)
	add("certificate_reference", attrs.CertificateReference)

	query := "SELECT id FROM certificate_documents WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY created_at ASC, id ASC"

	ids := []uuid.UUID{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("documentRepo.FindByAttributes: %w", err)
	}
	return ids, nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.DocumentRecord, error) {
	var doc domain.DocumentRecord
	err := r.db.GetContext(ctx, &doc,
		"SELECT * FROM certificate_documents WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.Get: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) Create(ctx context.Context, fields *domain.DocumentFields) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO certificate_documents (
				id, document_type, shipment_id, certificate_reference, filename,
				payload, checksum, verified, version, checked_out, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10, $10)`,
			id, fields.DocumentType, fields.ShipmentID, fields.CertificateReference, fields.Filename,
			fields.Payload, fields.Checksum, fields.Verified, fields.CheckedOut, now)
		if err != nil {
			return err
		}
		return insertVersion(ctx, tx, id, 1, fields, now)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("documentRepo.Create: %w", err)
	}
	return id, nil
}

func (r *documentRepo) Update(ctx context.Context, id uuid.UUID, fields *domain.DocumentFields) (bool, error) {
	now := time.Now().UTC()
	applied := false

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var version int
		err := tx.GetContext(ctx, &version,
			`UPDATE certificate_documents SET
				document_type = $1, shipment_id = $2, certificate_reference = $3, filename = $4,
				payload = $5, checksum = $6, verified = $7, version = version + 1, updated_at = $8
			 WHERE id = $9 AND deleted_at IS NULL AND checked_out
			 RETURNING version`,
			fields.DocumentType, fields.ShipmentID, fields.CertificateReference, fields.Filename,
			fields.Payload, fields.Checksum, fields.Verified, now, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return insertVersion(ctx, tx, id, version, fields, now)
	})
	if err != nil {
		return false, fmt.Errorf("documentRepo.Update: %w", err)
	}
	return applied, nil
}

func (r *documentRepo) Checkout(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE certificate_documents SET checked_out = TRUE, updated_at = $1
		 WHERE id = $2 AND deleted_at IS NULL AND NOT checked_out`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.Checkout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo.Checkout: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrDocumentCheckedOut
	}
	return nil
}

func (r *documentRepo) Checkin(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE certificate_documents SET checked_out = FALSE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("documentRepo.Checkin: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo.Checkin: %w", err)
	}
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE certificate_documents SET deleted_at = $1, updated_at = $1
		 WHERE id = $2 AND deleted_at IS NULL`,
		now, id)
	if err != nil {
		return fmt.Errorf("documentRepo.Delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo.Delete: %w", err)
	}
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) LatestVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.db.GetContext(ctx, &version,
		"SELECT version FROM certificate_documents WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrDocumentNotFound
		}
		return 0, fmt.Errorf("documentRepo.LatestVersion: %w", err)
	}
	return version, nil
}

// RevertToVersion restores the content of version and drops newer history.
func (r *documentRepo) RevertToVersion(ctx context.Context, id uuid.UUID, version int) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var v domain.DocumentVersion
		err := tx.GetContext(ctx, &v,
			"SELECT * FROM certificate_document_versions WHERE document_id = $1 AND version = $2",
			id, version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrVersionNotFound
			}
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE certificate_documents SET
				document_type = $1, shipment_id = $2, certificate_reference = $3, filename = $4,
				payload = $5, checksum = $6, verified = $7, version = $8, updated_at = $9
			 WHERE id = $10 AND deleted_at IS NULL`,
			v.DocumentType, v.ShipmentID, v.CertificateReference, v.Filename,
			v.Payload, v.Checksum, v.Verified, v.Version, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrDocumentNotFound
		}

		_, err = tx.ExecContext(ctx,
			"DELETE FROM certificate_document_versions WHERE document_id = $1 AND version > $2",
			id, version)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) || errors.Is(err, domain.ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("documentRepo.RevertToVersion: %w", err)
	}
	return nil
}

func (r *documentRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func insertVersion(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, version int, fields *domain.DocumentFields, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO certificate_document_versions (
			document_id, version, document_type, shipment_id, certificate_reference,
			filename, payload, checksum, verified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, version, fields.DocumentType, fields.ShipmentID, fields.CertificateReference,
		fields.Filename, fields.Payload, fields.Checksum, fields.Verified, at)
	return err
}
