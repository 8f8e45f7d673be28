// Package indexer drives one document through extract, chunk, embed
// and the dual write: ground truth first, vector index second.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/chunker"
	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/extract"
	"github.com/driftwoodlabs/indexd/internal/logging"
	"github.com/driftwoodlabs/indexd/internal/store"
	"github.com/driftwoodlabs/indexd/internal/vectorstore"
)

var tracer = otel.Tracer("indexd.indexer")

// Status is the terminal state of one indexing run.
type Status string

const (
	// StatusIndexed means chunks were written to both stores.
	StatusIndexed Status = "indexed"
	// StatusSkipped means the document was already indexed, or its
	// format is not supported.
	StatusSkipped Status = "skipped"
	// StatusEmpty means extraction produced no usable text.
	StatusEmpty Status = "empty"
	// StatusFailed means a terminal failure; retrying the same input
	// will not help.
	StatusFailed Status = "failed"
)

// Result reports the outcome of one indexing run.
type Result struct {
	Status Status `json:"status"`
	Chunks int    `json:"chunks,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// GroundStore is the slice of the relational store the indexer needs.
type GroundStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	SetDocumentType(ctx context.Context, id uuid.UUID, docType string) error
	CountChunksByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	CreateChunks(ctx context.Context, chunks []store.Chunk) error
	ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]store.Chunk, error)
	ListDocumentIDsByTenant(ctx context.Context, tenantID int64) ([]uuid.UUID, error)
}

// VectorIndex is the slice of the ANN store the indexer needs.
type VectorIndex interface {
	EnsurePartition(ctx context.Context, partition string) error
	UpsertRecords(ctx context.Context, partition string, records []vectorstore.VectorRecord) (int, error)
	DeleteByDocument(ctx context.Context, partition, documentID string) error
	DropPartition(ctx context.Context, partition string) error
}

// Extractor pulls plain text out of a file on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Service indexes documents.
type Service struct {
	store      GroundStore
	vectors    VectorIndex
	embedder   embedder
	extractor  Extractor
	classifier *classifier
	cfg        config.IndexingConfig
	prefix     string
	logger     *zap.Logger
}

// NewService wires an indexing service. prefix is the tenant partition
// name prefix.
func NewService(gs GroundStore, vi VectorIndex, e embedder, ex Extractor, cfg config.IndexingConfig, prefix string, logger *zap.Logger) *Service {
	return &Service{
		store:      gs,
		vectors:    vi,
		embedder:   e,
		extractor:  ex,
		classifier: newClassifier(e),
		cfg:        cfg,
		prefix:     prefix,
		logger:     logger.Named("indexer"),
	}
}

// IndexDocument indexes one document. A document with existing chunks
// is skipped unless force is set; force re-extracts and replaces both
// stores. A returned error means the run may succeed on retry; a
// Result with StatusFailed means it will not.
func (s *Service) IndexDocument(ctx context.Context, docID uuid.UUID, force bool) (*Result, error) {
	ctx = logging.WithDocumentID(ctx, docID.String())
	ctx, span := tracer.Start(ctx, "Indexer.IndexDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document_id", docID.String()),
		attribute.Bool("force", force),
	)

	log := s.logger.With(logging.ContextFields(ctx)...)

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Error("document does not exist")
			RunsTotal.WithLabelValues(string(StatusFailed)).Inc()
			return &Result{Status: StatusFailed, Reason: "document-not-found"}, nil
		}
		return nil, fmt.Errorf("loading document: %w", err)
	}

	if !force {
		count, err := s.store.CountChunksByDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("checking existing chunks: %w", err)
		}
		if count > 0 {
			log.Debug("already indexed, skipping")
			RunsTotal.WithLabelValues(string(StatusSkipped)).Inc()
			return &Result{Status: StatusSkipped, Reason: "already-indexed"}, nil
		}
	}

	text, err := s.extractor.Extract(ctx, doc.Filepath)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			log.Warn("unsupported format", zap.String("filename", doc.Filename))
			RunsTotal.WithLabelValues(string(StatusSkipped)).Inc()
			return &Result{Status: StatusSkipped, Reason: "unsupported-format"}, nil
		}
		log.Error("extraction failed", zap.String("filename", doc.Filename), zap.Error(err))
		RunsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return &Result{Status: StatusFailed, Reason: "extraction-failed"}, nil
	}

	chunks := chunker.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	// Whole-document type classification happens even when indexing
	// ends up empty, mirroring the registry's expectations.
	s.classifyDocument(ctx, doc, chunks)

	if len(chunks) == 0 {
		log.Warn("no extractable text", zap.String("filename", doc.Filename))
		RunsTotal.WithLabelValues(string(StatusEmpty)).Inc()
		return &Result{Status: StatusEmpty, Reason: "no-extractable-text"}, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	partition := vectorstore.PartitionName(s.prefix, doc.TenantID)

	if force {
		if _, err := s.store.DeleteChunksByDocument(ctx, docID); err != nil {
			return nil, fmt.Errorf("deleting old chunks: %w", err)
		}
		if err := s.vectors.DeleteByDocument(ctx, partition, docID.String()); err != nil {
			log.Warn("deleting old vector records failed", zap.Error(err))
		}
	}

	// Ground truth lands first and atomically; the vector index can
	// always be rebuilt from it.
	rows := make([]store.Chunk, len(chunks))
	for i, chunk := range chunks {
		rows[i] = store.Chunk{
			DocumentID: docID,
			TenantID:   doc.TenantID,
			ChunkIndex: i,
			ChunkText:  chunk,
			Embedding:  pgvector.NewVector(vectors[i]),
		}
	}
	if err := s.store.CreateChunks(ctx, rows); err != nil {
		return nil, fmt.Errorf("persisting chunks: %w", err)
	}

	if err := s.vectors.EnsurePartition(ctx, partition); err != nil {
		return nil, fmt.Errorf("ensuring partition: %w", err)
	}

	records := dedupRecords(docID.String(), doc.Filename, chunks, vectors)
	inserted, err := s.vectors.UpsertRecords(ctx, partition, records)
	if err != nil {
		// Ground truth is in place; the partition can be rebuilt.
		log.Error("vector upsert failed", zap.String("partition", partition), zap.Error(err))
	}

	log.Info("document indexed",
		zap.String("partition", partition),
		zap.Int("chunks", len(chunks)),
		zap.Int("vector_records", inserted))
	RunsTotal.WithLabelValues(string(StatusIndexed)).Inc()
	ChunksIndexed.Add(float64(len(chunks)))
	return &Result{Status: StatusIndexed, Chunks: len(chunks)}, nil
}

func (s *Service) classifyDocument(ctx context.Context, doc *store.Document, chunks []string) {
	docType, err := s.classifier.Classify(ctx, strings.Join(chunks, " "))
	if err != nil {
		s.logger.Warn("type classification failed",
			zap.String("document_id", doc.ID.String()), zap.Error(err))
		return
	}
	if err := s.store.SetDocumentType(ctx, doc.ID, docType); err != nil {
		s.logger.Warn("recording document type failed",
			zap.String("document_id", doc.ID.String()), zap.Error(err))
		return
	}
	s.logger.Info("document classified",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_type", docType))
}

// dedupRecords builds vector records, dropping chunks whose normalized
// text hashes to one already seen in this run.
func dedupRecords(docID, filename string, chunks []string, vectors [][]float32) []vectorstore.VectorRecord {
	seen := make(map[uint64]struct{}, len(chunks))
	records := make([]vectorstore.VectorRecord, 0, len(chunks))
	for i, chunk := range chunks {
		h := ContentHash(chunk)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		records = append(records, vectorstore.VectorRecord{
			DocumentID:  docID,
			ContentHash: h,
			SourceName:  filename,
			Text:        chunk,
			Vector:      vectors[i],
		})
	}
	return records
}

// RebuildPartition re-creates a tenant's partition from ground truth.
// Stored embeddings are replayed; neither extraction nor the embedding
// model runs.
func (s *Service) RebuildPartition(ctx context.Context, tenantID int64) error {
	ctx = logging.WithTenantID(ctx, strconv.FormatInt(tenantID, 10))
	ctx, span := tracer.Start(ctx, "Indexer.RebuildPartition")
	defer span.End()
	span.SetAttributes(attribute.Int64("tenant_id", tenantID))

	log := s.logger.With(logging.ContextFields(ctx)...)
	partition := vectorstore.PartitionName(s.prefix, tenantID)

	if err := s.vectors.DropPartition(ctx, partition); err != nil && !errors.Is(err, vectorstore.ErrPartitionNotFound) {
		log.Warn("dropping partition failed, rebuilding over existing", zap.Error(err))
	}
	if err := s.vectors.EnsurePartition(ctx, partition); err != nil {
		return fmt.Errorf("ensuring partition: %w", err)
	}

	docIDs, err := s.store.ListDocumentIDsByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("listing tenant documents: %w", err)
	}

	total := 0
	for _, docID := range docIDs {
		chunks, err := s.store.ListChunksByDocument(ctx, docID)
		if err != nil {
			return fmt.Errorf("loading chunks for %s: %w", docID, err)
		}
		if len(chunks) == 0 {
			continue
		}

		doc, err := s.store.GetDocument(ctx, docID)
		if err != nil {
			return fmt.Errorf("loading document %s: %w", docID, err)
		}

		texts := make([]string, len(chunks))
		vectors := make([][]float32, len(chunks))
		for i, c := range chunks {
			texts[i] = c.ChunkText
			vectors[i] = c.Embedding.Slice()
		}

		records := dedupRecords(docID.String(), doc.Filename, texts, vectors)
		inserted, err := s.vectors.UpsertRecords(ctx, partition, records)
		if err != nil {
			return fmt.Errorf("replaying document %s: %w", docID, err)
		}
		total += inserted
	}

	log.Info("partition rebuilt",
		zap.String("partition", partition),
		zap.Int("documents", len(docIDs)),
		zap.Int("vector_records", total))
	return nil
}
