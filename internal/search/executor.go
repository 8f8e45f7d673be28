// Package search executes semantic queries against a tenant's
// partition and shapes the hits for presentation.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/indexer"
	"github.com/driftwoodlabs/indexd/internal/logging"
	"github.com/driftwoodlabs/indexd/internal/store"
	"github.com/driftwoodlabs/indexd/internal/vectorstore"
)

var tracer = otel.Tracer("indexd.search")

var (
	// ErrInvalidQuery indicates a malformed search request.
	ErrInvalidQuery = errors.New("search: invalid query")

	// ErrUnavailable indicates the search backend could not serve the
	// query. Distinct from an empty result set.
	ErrUnavailable = errors.New("search: backend unavailable")
)

// maxSnippetChars bounds rendered snippets.
const maxSnippetChars = 300

// Request describes one search.
type Request struct {
	TenantID    int64    `json:"tenant_id"`
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

// Preview carries enough document metadata to render a result card.
type Preview struct {
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url"`
}

// Hit is one search result.
type Hit struct {
	DocumentID string   `json:"document_id"`
	Snippet    string   `json:"snippet_md"`
	Score      float32  `json:"score"`
	Preview    *Preview `json:"preview,omitempty"`
}

// VectorSearcher is the slice of the ANN store the executor needs.
type VectorSearcher interface {
	EnsurePartition(ctx context.Context, partition string) error
	SearchPartition(ctx context.Context, partition string, vector []float32, topK int, documentIDs []string) ([]vectorstore.SearchHit, error)
}

// HitStore resolves document metadata and records the query log.
type HitStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	InsertQueryLog(ctx context.Context, log store.QueryLog) error
}

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Executor runs searches with a shared TTL-bounded result cache. The
// async search job and the HTTP layer both hold the same Executor, so
// a job's result becomes visible to the poll loop through the cache.
type Executor struct {
	vectors  VectorSearcher
	store    HitStore
	embedder queryEmbedder
	signer   *URLSigner
	cache    *expirable.LRU[string, []Hit]
	cfg      config.SearchConfig
	prefix   string
	logger   *zap.Logger
}

// NewExecutor builds an executor. prefix is the tenant partition name
// prefix.
func NewExecutor(vs VectorSearcher, hs HitStore, e queryEmbedder, cfg config.SearchConfig, prefix string, logger *zap.Logger) *Executor {
	size := cfg.CacheSize
	if size <= 0 {
		size = 4096
	}
	ttl := time.Duration(cfg.CacheTTL)
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	return &Executor{
		vectors:  vs,
		store:    hs,
		embedder: e,
		signer:   NewURLSigner(cfg.PreviewKey.Value(), cfg.PreviewBaseURL, time.Duration(cfg.PreviewTTL)),
		cache:    expirable.NewLRU[string, []Hit](size, nil, ttl),
		cfg:      cfg,
		prefix:   prefix,
		logger:   logger.Named("search"),
	}
}

// normalize applies defaults and validates the request.
func (e *Executor) normalize(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	const maxQueryChars = 10000
	if len(req.Query) > maxQueryChars {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, maxQueryChars)
	}
	if req.TopK <= 0 {
		req.TopK = e.cfg.DefaultTopK
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	return nil
}

// cacheKey is stable across document scope ordering.
func (e *Executor) cacheKey(req Request) string {
	scope := append([]string(nil), req.DocumentIDs...)
	sort.Strings(scope)
	qsum := sha256.Sum256([]byte(req.Query))
	return strconv.FormatInt(req.TenantID, 10) + "|" +
		strings.Join(scope, ",") + "|" +
		strconv.Itoa(req.TopK) + "|" +
		hex.EncodeToString(qsum[:8])
}

// Lookup returns a cached result for req without executing anything.
func (e *Executor) Lookup(req Request) ([]Hit, bool) {
	if err := e.normalize(&req); err != nil {
		return nil, false
	}
	return e.cache.Get(e.cacheKey(req))
}

// Search executes the query, serving from cache when possible. A
// non-cached search queries the tenant partition, dedups hits by
// chunk content hash, and writes one audit log row.
func (e *Executor) Search(ctx context.Context, req Request) ([]Hit, error) {
	if err := e.normalize(&req); err != nil {
		return nil, err
	}

	ctx = logging.WithTenantID(ctx, strconv.FormatInt(req.TenantID, 10))
	ctx, span := tracer.Start(ctx, "Search.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("tenant_id", req.TenantID),
		attribute.Int("top_k", req.TopK),
		attribute.Int("document_scope", len(req.DocumentIDs)),
	)

	key := e.cacheKey(req)
	if hits, ok := e.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		SearchesTotal.WithLabelValues("cache_hit").Inc()
		return hits, nil
	}

	log := e.logger.With(logging.ContextFields(ctx)...)

	vector, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}

	partition := vectorstore.PartitionName(e.prefix, req.TenantID)

	start := time.Now()
	raw, err := e.vectors.SearchPartition(ctx, partition, vector, req.TopK, req.DocumentIDs)
	duration := time.Since(start)
	SearchLatency.Observe(duration.Seconds())
	if err != nil {
		if errors.Is(err, vectorstore.ErrPartitionNotFound) {
			// The first query creates the partition; with nothing
			// indexed yet the result is empty, not an outage. The
			// miss is not cached since the partition may fill at
			// any moment.
			if cerr := e.vectors.EnsurePartition(ctx, partition); cerr != nil {
				log.Warn("creating partition on first query failed",
					zap.String("partition", partition), zap.Error(cerr))
			}
			SearchesTotal.WithLabelValues("executed").Inc()
			return []Hit{}, nil
		}
		span.RecordError(err)
		SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hits := e.shapeHits(ctx, raw, req.TopK)
	e.cache.Add(key, hits)
	e.writeQueryLog(ctx, req, hits, duration)
	SearchesTotal.WithLabelValues("executed").Inc()

	log.Info("search executed",
		zap.String("partition", partition),
		zap.Int("hits", len(hits)),
		zap.Duration("ann_latency", duration))
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// shapeHits dedups raw hits by content hash and renders snippets and
// previews, keeping at most topK.
func (e *Executor) shapeHits(ctx context.Context, raw []vectorstore.SearchHit, topK int) []Hit {
	seen := make(map[uint64]struct{}, len(raw))
	previews := make(map[string]*Preview)
	hits := make([]Hit, 0, topK)

	for _, r := range raw {
		h := r.ContentHash
		if h == 0 {
			h = indexer.ContentHash(r.Text)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		hits = append(hits, Hit{
			DocumentID: r.DocumentID,
			Snippet:    Snippet(r.Text),
			Score:      r.Score,
			Preview:    e.previewFor(ctx, previews, r.DocumentID),
		})
		if len(hits) >= topK {
			break
		}
	}
	return hits
}

// previewFor resolves document metadata once per document per search.
func (e *Executor) previewFor(ctx context.Context, cache map[string]*Preview, documentID string) *Preview {
	if p, ok := cache[documentID]; ok {
		return p
	}

	id, err := uuid.Parse(documentID)
	if err != nil {
		cache[documentID] = nil
		return nil
	}
	doc, err := e.store.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("resolving preview failed",
				zap.String("document_id", documentID), zap.Error(err))
		}
		cache[documentID] = nil
		return nil
	}

	p := &Preview{
		Filename:    doc.Filename,
		SizeBytes:   doc.SizeBytes,
		DownloadURL: e.signer.Sign(documentID, time.Now()),
	}
	cache[documentID] = p
	return p
}

func (e *Executor) writeQueryLog(ctx context.Context, req Request, hits []Hit, duration time.Duration) {
	entry := store.QueryLog{
		TenantID:    req.TenantID,
		QueryText:   req.Query,
		TopK:        req.TopK,
		DurationMS:  duration.Milliseconds(),
		ResultCount: len(hits),
	}
	if len(req.DocumentIDs) == 1 {
		if id, err := uuid.Parse(req.DocumentIDs[0]); err == nil {
			entry.DocumentID = &id
		}
	}
	if data, err := json.Marshal(hits); err == nil {
		entry.ResultJSON = data
	}

	if err := e.store.InsertQueryLog(ctx, entry); err != nil {
		e.logger.Warn("writing query log failed", zap.Error(err))
	}
}

// Snippet renders chunk text for markdown display: truncated with an
// ellipsis past the limit, newlines turned into markdown line breaks.
// The cut lands on a rune start so the snippet stays valid UTF-8.
func Snippet(text string) string {
	if len(text) > maxSnippetChars {
		cut := maxSnippetChars - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return strings.ReplaceAll(text, "\n", "  \n")
}
