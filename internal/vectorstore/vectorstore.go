// Package vectorstore is the Qdrant-backed ANN index. Each tenant
// gets its own collection ("partition"); records are never written to
// or read from another tenant's partition.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/driftwoodlabs/indexd/internal/config"
)

var tracer = otel.Tracer("indexd.vectorstore")

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPartitionName indicates a partition name that failed validation
	ErrInvalidPartitionName = errors.New("invalid partition name")

	// ErrPartitionNotFound indicates the partition does not exist
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrConnectionFailed indicates the Qdrant connection could not be established
	ErrConnectionFailed = errors.New("connection failed")
)

// partitionNamePattern validates partition (collection) names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var partitionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// maxPayloadTextChars bounds the chunk text mirrored into point
// payloads. Full text lives in the ground-truth store.
const maxPayloadTextChars = 2000

// PartitionName returns the deterministic collection name for a
// tenant, e.g. "docchunks_tenant_42".
func PartitionName(prefix string, tenantID int64) string {
	return prefix + strconv.FormatInt(tenantID, 10)
}

// ValidatePartitionName validates a partition name against the
// allowed pattern. Rejects uppercase, special chars, path traversal.
func ValidatePartitionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPartitionName)
	}
	if !partitionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidPartitionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore talks to Qdrant over its native gRPC transport
// (port 6334). Binary protobuf encoding avoids the HTTP payload
// limits that bite during bulk indexing.
type QdrantStore struct {
	client     *qdrant.Client
	cfg        config.QdrantConfig
	vectorSize uint64
	logger     *zap.Logger

	// partitions caches partition existence to avoid repeated checks.
	partitions sync.Map

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

const (
	maxMessageSize          = 50 * 1024 * 1024
	circuitBreakerThreshold = 5
	circuitBreakerCooldown  = 30 * time.Second
)

// NewQdrantStore connects to Qdrant and performs a health check.
func NewQdrantStore(cfg config.QdrantConfig, vectorSize int, logger *zap.Logger) (*QdrantStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, cfg.Port)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}

	log := logger.Named("vectorstore")
	if !cfg.UseTLS {
		log.Warn("qdrant grpc using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:     client,
		cfg:        cfg,
		vectorSize: uint64(vectorSize),
		logger:     log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return s, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := time.Duration(s.cfg.RetryBackoff)
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.cfg.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= circuitBreakerThreshold {
		if time.Since(s.circuitBreaker.lastFail) > circuitBreakerCooldown {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsurePartition creates the partition if it does not exist yet.
// Tolerates a concurrent create by another worker.
func (s *QdrantStore) EnsurePartition(ctx context.Context, partition string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsurePartition")
	defer span.End()
	span.SetAttributes(attribute.String("partition", partition))

	if err := ValidatePartitionName(partition); err != nil {
		return err
	}

	if _, ok := s.partitions.Load(partition); ok {
		return nil
	}

	exists, err := s.partitionExists(ctx, partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking partition %s: %w", partition, err)
	}
	if exists {
		s.partitions.Store(partition, true)
		return nil
	}

	err = s.retryOperation(ctx, "create_partition", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: partition,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		// Another worker may have created it between the existence
		// check and the create call.
		if st, ok := status.FromError(errors.Unwrap(err)); ok && st.Code() == grpccodes.AlreadyExists {
			s.partitions.Store(partition, true)
			return nil
		}
		exists, checkErr := s.partitionExists(ctx, partition)
		if checkErr == nil && exists {
			s.partitions.Store(partition, true)
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating partition %s: %w", partition, err)
	}

	s.partitions.Store(partition, true)
	s.logger.Info("partition created",
		zap.String("partition", partition),
		zap.Uint64("vector_size", s.vectorSize))
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (s *QdrantStore) partitionExists(ctx context.Context, partition string) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, "partition_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, partition)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	return exists, err
}

// DropPartition removes a tenant's partition and all its points.
func (s *QdrantStore) DropPartition(ctx context.Context, partition string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DropPartition")
	defer span.End()
	span.SetAttributes(attribute.String("partition", partition))

	if err := ValidatePartitionName(partition); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "drop_partition", func() error {
		return s.client.DeleteCollection(ctx, partition)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping partition %s: %w", partition, err)
	}

	s.partitions.Delete(partition)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// UpsertRecords writes records to a partition in fixed-size batches.
// Batches are best-effort: a failing batch is logged and skipped so a
// single bad batch does not void the rest. Returns the number of
// records upserted; the error is non-nil only when nothing landed.
func (s *QdrantStore) UpsertRecords(ctx context.Context, partition string, records []VectorRecord) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertRecords")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition", partition),
		attribute.Int("record_count", len(records)),
	)

	if err := ValidatePartitionName(partition); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batchSize := s.cfg.InsertBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	inserted := 0
	var firstErr error
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, rec := range batch {
			points[i] = rec.point()
		}

		err := s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: partition,
				Points:         points,
			})
			return err
		})
		if err != nil {
			s.logger.Error("upsert batch failed",
				zap.String("partition", partition),
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted += len(batch)
	}

	span.SetAttributes(attribute.Int("records_inserted", inserted))
	if inserted == 0 && firstErr != nil {
		span.SetStatus(codes.Error, firstErr.Error())
		return 0, fmt.Errorf("upserting to partition %s: %w", partition, firstErr)
	}
	span.SetStatus(codes.Ok, "success")
	return inserted, nil
}

// SearchPartition runs an ANN query against one tenant's partition.
// When documentIDs is non-empty, hits are restricted to those
// documents.
func (s *QdrantStore) SearchPartition(ctx context.Context, partition string, vector []float32, topK int, documentIDs []string) ([]SearchHit, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SearchPartition")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition", partition),
		attribute.Int("top_k", topK),
		attribute.Int("document_filter_count", len(documentIDs)),
	)

	if err := ValidatePartitionName(partition); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, topK)
	}
	const maxK = 1000
	if topK > maxK {
		topK = maxK
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: partition,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         documentFilter(documentIDs),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(errors.Unwrap(err)); ok && st.Code() == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, partition)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching partition %s: %w", partition, err)
	}

	hits := make([]SearchHit, len(results))
	for i, point := range results {
		hits[i] = hitFromPoint(point)
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// DeleteByDocument removes every point belonging to a document from a
// partition.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, partition, documentID string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition", partition),
		attribute.String("document_id", documentID),
	)

	if err := ValidatePartitionName(partition); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete_by_document", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: partition,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: documentFilter([]string{documentID}),
				},
			},
		})
		return err
	})
	if err != nil {
		if st, ok := status.FromError(errors.Unwrap(err)); ok && st.Code() == grpccodes.NotFound {
			// Document was never indexed into this partition.
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s from partition %s: %w", documentID, partition, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// documentFilter builds a must-match filter on the document_id payload
// field. Returns nil for an empty scope (no filtering).
func documentFilter(documentIDs []string) *qdrant.Filter {
	if len(documentIDs) == 0 {
		return nil
	}

	var match *qdrant.Match
	if len(documentIDs) == 1 {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentIDs[0]}}
	} else {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
			Keywords: &qdrant.RepeatedStrings{Strings: documentIDs},
		}}
	}

	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "document_id",
						Match: match,
					},
				},
			},
		},
	}
}

func hitFromPoint(point *qdrant.ScoredPoint) SearchHit {
	hit := SearchHit{Score: point.Score}
	for key, value := range point.Payload {
		switch val := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			switch key {
			case "document_id":
				hit.DocumentID = val.StringValue
			case "source_name":
				hit.SourceName = val.StringValue
			case "chunk_text":
				hit.Text = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			if key == "content_hash" {
				hit.ContentHash = uint64(val.IntegerValue)
			}
		}
	}
	return hit
}

// point converts a record into a Qdrant point with a fresh UUID.
// pointID derives a stable point id from the owning document and the
// chunk content hash, so a redelivered job overwrites instead of
// duplicating.
func (r VectorRecord) pointID() string {
	name := fmt.Sprintf("%s:%016x", r.DocumentID, r.ContentHash)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (r VectorRecord) point() *qdrant.PointStruct {
	text := r.Text
	if len(text) > maxPayloadTextChars {
		// Cut on a rune start so the payload stays valid UTF-8.
		cut := maxPayloadTextChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(r.pointID()),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: map[string]*qdrant.Value{
			"document_id":  {Kind: &qdrant.Value_StringValue{StringValue: r.DocumentID}},
			"content_hash": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.ContentHash)}},
			"source_name":  {Kind: &qdrant.Value_StringValue{StringValue: r.SourceName}},
			"chunk_text":   {Kind: &qdrant.Value_StringValue{StringValue: text}},
		},
	}
}
