package store

import (
	"context"
	"fmt"
)

// InsertQueryLog records one executed search. Cache hits are not
// logged; only searches that reached the vector index produce a row.
func (s *Store) InsertQueryLog(ctx context.Context, log QueryLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_query_logs
			(tenant_id, document_id, query_text, top_k, duration_ms, result_count, result_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.TenantID, log.DocumentID, log.QueryText, log.TopK,
		log.DurationMS, log.ResultCount, log.ResultJSON)
	if err != nil {
		return fmt.Errorf("inserting query log: %w", err)
	}
	return nil
}
