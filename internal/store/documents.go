package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetDocument fetches one registry row by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, filename, filepath, size_bytes, mime, document_type, created_at
		FROM documents
		WHERE id = $1`, id)

	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.Filename, &d.Filepath, &d.SizeBytes, &d.Mime, &d.DocumentType, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return &d, nil
}

// SetDocumentType records the classified type on a document.
func (s *Store) SetDocumentType(ctx context.Context, id uuid.UUID, docType string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET document_type = $2 WHERE id = $1`, id, docType)
	if err != nil {
		return fmt.Errorf("setting document type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// ListUnindexedDocumentIDs returns documents with no chunk rows,
// oldest first. The backfill job enqueues these for indexing.
func (s *Store) ListUnindexedDocumentIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id
		FROM documents d
		WHERE NOT EXISTS (SELECT 1 FROM chunks c WHERE c.document_id = d.id)
		ORDER BY d.created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unindexed documents: %w", err)
	}
	return ids, nil
}

// ListDocumentIDsByTenant returns every registry row for one tenant,
// oldest first. The rebuild path walks these.
func (s *Store) ListDocumentIDsByTenant(ctx context.Context, tenantID int64) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM documents WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing tenant documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tenant documents: %w", err)
	}
	return ids, nil
}
