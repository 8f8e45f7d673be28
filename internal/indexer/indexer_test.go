package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/extract"
	"github.com/driftwoodlabs/indexd/internal/store"
	"github.com/driftwoodlabs/indexd/internal/vectorstore"
)

type fakeGroundStore struct {
	docs       map[uuid.UUID]*store.Document
	chunks     map[uuid.UUID][]store.Chunk
	docTypes   map[uuid.UUID]string
	createErr  error
	createdTxs int
}

func newFakeGroundStore() *fakeGroundStore {
	return &fakeGroundStore{
		docs:     make(map[uuid.UUID]*store.Document),
		chunks:   make(map[uuid.UUID][]store.Chunk),
		docTypes: make(map[uuid.UUID]string),
	}
}

func (f *fakeGroundStore) GetDocument(_ context.Context, id uuid.UUID) (*store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (f *fakeGroundStore) SetDocumentType(_ context.Context, id uuid.UUID, docType string) error {
	if _, ok := f.docs[id]; !ok {
		return store.ErrNotFound
	}
	f.docTypes[id] = docType
	return nil
}

func (f *fakeGroundStore) CountChunksByDocument(_ context.Context, documentID uuid.UUID) (int64, error) {
	return int64(len(f.chunks[documentID])), nil
}

func (f *fakeGroundStore) DeleteChunksByDocument(_ context.Context, documentID uuid.UUID) (int64, error) {
	n := int64(len(f.chunks[documentID]))
	delete(f.chunks, documentID)
	return n, nil
}

func (f *fakeGroundStore) CreateChunks(_ context.Context, chunks []store.Chunk) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdTxs++
	if len(chunks) > 0 {
		f.chunks[chunks[0].DocumentID] = append(f.chunks[chunks[0].DocumentID], chunks...)
	}
	return nil
}

func (f *fakeGroundStore) ListChunksByDocument(_ context.Context, documentID uuid.UUID) ([]store.Chunk, error) {
	return f.chunks[documentID], nil
}

func (f *fakeGroundStore) ListDocumentIDsByTenant(_ context.Context, tenantID int64) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, doc := range f.docs {
		if doc.TenantID == tenantID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeVectorIndex struct {
	partitions map[string][]vectorstore.VectorRecord
	dropped    []string
	upsertErr  error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{partitions: make(map[string][]vectorstore.VectorRecord)}
}

func (f *fakeVectorIndex) EnsurePartition(_ context.Context, partition string) error {
	if _, ok := f.partitions[partition]; !ok {
		f.partitions[partition] = nil
	}
	return nil
}

func (f *fakeVectorIndex) UpsertRecords(_ context.Context, partition string, records []vectorstore.VectorRecord) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.partitions[partition] = append(f.partitions[partition], records...)
	return len(records), nil
}

func (f *fakeVectorIndex) DeleteByDocument(_ context.Context, partition, documentID string) error {
	kept := f.partitions[partition][:0]
	for _, r := range f.partitions[partition] {
		if r.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	f.partitions[partition] = kept
	return nil
}

func (f *fakeVectorIndex) DropPartition(_ context.Context, partition string) error {
	f.dropped = append(f.dropped, partition)
	delete(f.partitions, partition)
	return nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 8)
		for j, r := range text {
			vec[j%8] += float32(r) / 1000
		}
		out[i] = vec
	}
	return out, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

func newTestService(gs *fakeGroundStore, vi *fakeVectorIndex, ex *fakeExtractor) *Service {
	cfg := config.IndexingConfig{ChunkSize: 500, ChunkOverlap: 100}
	return NewService(gs, vi, &fakeEmbedder{}, ex, cfg, "docchunks_tenant_", zap.NewNop())
}

func addDocument(gs *fakeGroundStore, tenantID int64) uuid.UUID {
	id := uuid.New()
	gs.docs[id] = &store.Document{
		ID:       id,
		TenantID: tenantID,
		Filename: "report.txt",
		Filepath: "/files/report.txt",
	}
	return id
}

func TestIndexDocumentHappyPath(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	docID := addDocument(gs, 7)
	svc := newTestService(gs, vi, &fakeExtractor{text: "Revenue grew ten percent. Costs stayed flat. Margins improved."})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)
	assert.Equal(t, res.Chunks, len(gs.chunks[docID]))

	records := vi.partitions["docchunks_tenant_7"]
	require.NotEmpty(t, records)
	assert.Equal(t, docID.String(), records[0].DocumentID)
	assert.Equal(t, "report.txt", records[0].SourceName)

	// Classification ran.
	assert.NotEmpty(t, gs.docTypes[docID])
}

func TestIndexDocumentWritesOnlyOwnTenantPartition(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	docA := addDocument(gs, 1)
	docB := addDocument(gs, 2)
	svc := newTestService(gs, vi, &fakeExtractor{text: "Identical content for both tenants."})

	_, err := svc.IndexDocument(context.Background(), docA, false)
	require.NoError(t, err)
	_, err = svc.IndexDocument(context.Background(), docB, false)
	require.NoError(t, err)

	require.Contains(t, vi.partitions, "docchunks_tenant_1")
	require.Contains(t, vi.partitions, "docchunks_tenant_2")
	assert.Len(t, vi.partitions, 2)

	for _, r := range vi.partitions["docchunks_tenant_1"] {
		assert.Equal(t, docA.String(), r.DocumentID)
	}
	for _, r := range vi.partitions["docchunks_tenant_2"] {
		assert.Equal(t, docB.String(), r.DocumentID)
	}
}

func TestIndexDocumentSkipsAlreadyIndexed(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	docID := addDocument(gs, 7)
	gs.chunks[docID] = []store.Chunk{{DocumentID: docID, ChunkIndex: 0, ChunkText: "existing."}}
	svc := newTestService(gs, vi, &fakeExtractor{text: "New text."})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "already-indexed", res.Reason)
	// Nothing re-extracted or re-written.
	assert.Len(t, gs.chunks[docID], 1)
	assert.Empty(t, vi.partitions)
}

func TestIndexDocumentForceReplaces(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	docID := addDocument(gs, 7)
	gs.chunks[docID] = []store.Chunk{{DocumentID: docID, ChunkIndex: 0, ChunkText: "stale."}}
	vi.partitions["docchunks_tenant_7"] = []vectorstore.VectorRecord{{DocumentID: docID.String(), Text: "stale."}}
	svc := newTestService(gs, vi, &fakeExtractor{text: "Fresh content replaces the old."})

	res, err := svc.IndexDocument(context.Background(), docID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)

	for _, c := range gs.chunks[docID] {
		assert.NotEqual(t, "stale.", c.ChunkText)
	}
	for _, r := range vi.partitions["docchunks_tenant_7"] {
		assert.NotEqual(t, "stale.", r.Text)
	}
}

func TestIndexDocumentNotFound(t *testing.T) {
	svc := newTestService(newFakeGroundStore(), newFakeVectorIndex(), &fakeExtractor{})

	res, err := svc.IndexDocument(context.Background(), uuid.New(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "document-not-found", res.Reason)
}

func TestIndexDocumentUnsupportedFormat(t *testing.T) {
	gs := newFakeGroundStore()
	docID := addDocument(gs, 7)
	svc := newTestService(gs, newFakeVectorIndex(), &fakeExtractor{err: extract.ErrUnsupportedFormat})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "unsupported-format", res.Reason)
}

func TestIndexDocumentExtractionFailure(t *testing.T) {
	gs := newFakeGroundStore()
	docID := addDocument(gs, 7)
	svc := newTestService(gs, newFakeVectorIndex(), &fakeExtractor{err: errors.New("pdftotext crashed")})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "extraction-failed", res.Reason)
}

func TestIndexDocumentEmptyText(t *testing.T) {
	gs := newFakeGroundStore()
	docID := addDocument(gs, 7)
	svc := newTestService(gs, newFakeVectorIndex(), &fakeExtractor{text: "   \n\t "})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.Equal(t, unknownType, gs.docTypes[docID])
}

func TestIndexDocumentEmbeddingFailureIsRetryable(t *testing.T) {
	gs := newFakeGroundStore()
	docID := addDocument(gs, 7)
	cfg := config.IndexingConfig{ChunkSize: 500, ChunkOverlap: 100}
	embedErr := errors.New("model unavailable")
	svc := NewService(gs, newFakeVectorIndex(), &fakeEmbedder{err: embedErr}, &fakeExtractor{text: "Some text."}, cfg, "docchunks_tenant_", zap.NewNop())

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.Error(t, err)
	assert.Nil(t, res)
	// No partial ground truth.
	assert.Empty(t, gs.chunks[docID])
}

func TestIndexDocumentVectorFailureStillIndexed(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	vi.upsertErr = errors.New("qdrant down")
	docID := addDocument(gs, 7)
	svc := newTestService(gs, vi, &fakeExtractor{text: "Ground truth survives vector outages."})

	res, err := svc.IndexDocument(context.Background(), docID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)
	assert.NotEmpty(t, gs.chunks[docID])
}

func TestDedupRecords(t *testing.T) {
	chunks := []string{"same text.", "same   text.", "other text."}
	vectors := [][]float32{{1}, {2}, {3}}

	records := dedupRecords("doc", "f.txt", chunks, vectors)
	require.Len(t, records, 2)
	assert.Equal(t, "same text.", records[0].Text)
	assert.Equal(t, "other text.", records[1].Text)
}

func TestRebuildPartition(t *testing.T) {
	gs := newFakeGroundStore()
	vi := newFakeVectorIndex()
	docID := addDocument(gs, 9)
	vec := make([]float32, 4)
	vec[0] = 1
	gs.chunks[docID] = []store.Chunk{
		{DocumentID: docID, TenantID: 9, ChunkIndex: 0, ChunkText: "stored chunk.", Embedding: pgvector.NewVector(vec)},
	}
	vi.partitions["docchunks_tenant_9"] = []vectorstore.VectorRecord{{DocumentID: "stale", Text: "stale."}}
	svc := newTestService(gs, vi, &fakeExtractor{})

	require.NoError(t, svc.RebuildPartition(context.Background(), 9))

	assert.Contains(t, vi.dropped, "docchunks_tenant_9")
	records := vi.partitions["docchunks_tenant_9"]
	require.Len(t, records, 1)
	assert.Equal(t, docID.String(), records[0].DocumentID)
	assert.Equal(t, "stored chunk.", records[0].Text)
	assert.Equal(t, []float32{1, 0, 0, 0}, records[0].Vector)
}

func TestContentHashNormalizes(t *testing.T) {
	assert.Equal(t, ContentHash("a  b\nc"), ContentHash("a b c"))
	assert.NotEqual(t, ContentHash("a b c"), ContentHash("a b d"))
	assert.Equal(t, "a b c", NormalizeText("  a\tb \n c "))
}

func TestClassifierEmptyText(t *testing.T) {
	c := newClassifier(&fakeEmbedder{})
	got, err := c.Classify(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, unknownType, got)
}

func TestClassifierPicksBestLabel(t *testing.T) {
	c := newClassifier(&fakeEmbedder{})
	got, err := c.Classify(context.Background(), strings.Repeat("invoice payment total ", 3))
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	// Same input classifies the same way.
	again, err := c.Classify(context.Background(), strings.Repeat("invoice payment total ", 3))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, -1.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, -1.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
