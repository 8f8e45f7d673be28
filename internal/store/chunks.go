package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreateChunks inserts all chunk rows for a document in one
// transaction. Either every chunk lands or none do.
func (s *Store) CreateChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk insert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (document_id, tenant_id, chunk_index, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			c.DocumentID, c.TenantID, c.ChunkIndex, c.ChunkText, c.Embedding)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk insert: %w", err)
	}

	s.logger.Debug("chunks created",
		zap.String("document_id", chunks[0].DocumentID.String()),
		zap.Int("count", len(chunks)))
	return nil
}

// DeleteChunksByDocument removes every chunk row for a document and
// returns how many were deleted.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountChunksByDocument reports how many chunk rows exist for a
// document. Zero means the document has never been indexed.
func (s *Store) CountChunksByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// ListChunksByDocument returns a document's chunks in index order,
// embeddings included. The rebuild path replays these into the vector
// index without re-running extraction or the embedding model.
func (s *Store) ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, tenant_id, chunk_index, chunk_text, embedding, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantID, &c.ChunkIndex, &c.ChunkText, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return chunks, nil
}
