package store

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// Document is a row in the document registry.
type Document struct {
	ID           uuid.UUID
	TenantID     int64
	Filename     string
	Filepath     string
	SizeBytes    int64
	Mime         string
	DocumentType *string
	CreatedAt    time.Time
}

// Chunk is one extracted text segment of a document, stored together
// with its embedding as the recoverable ground truth.
type Chunk struct {
	ID         int64
	DocumentID uuid.UUID
	TenantID   int64
	ChunkIndex int
	ChunkText  string
	Embedding  pgvector.Vector
	CreatedAt  time.Time
}

// QueryLog is an audit record of one executed search.
type QueryLog struct {
	ID          int64
	TenantID    int64
	DocumentID  *uuid.UUID
	QueryText   string
	TopK        int
	DurationMS  int64
	ResultCount int
	ResultJSON  []byte
	CreatedAt   time.Time
}
