package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/indexer"
	"github.com/driftwoodlabs/indexd/internal/logging"
	"github.com/driftwoodlabs/indexd/internal/search"
)

// DocumentIndexer runs the indexing pipeline for one document.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, docID uuid.UUID, force bool) (*indexer.Result, error)
}

// Searcher executes a query; results become visible through the
// shared cache.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Hit, error)
}

// BackfillSource lists documents that still need indexing.
type BackfillSource interface {
	ListUnindexedDocumentIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Worker consumes jobs from the INDEXD stream with durable pull
// consumers. Delivery is at-least-once; job handlers are idempotent
// (re-indexing an indexed document is a skip, search is a pure read).
type Worker struct {
	queue    *Queue
	indexer  DocumentIndexer
	searcher Searcher
	backfill BackfillSource

	indexTimeout  time.Duration
	searchTimeout time.Duration
	logger        *zap.Logger

	consumeCtxs []jetstream.ConsumeContext
}

// NewWorker wires a worker pool over an existing queue.
func NewWorker(q *Queue, di DocumentIndexer, se Searcher, bf BackfillSource, indexTimeout, searchTimeout time.Duration, logger *zap.Logger) *Worker {
	if indexTimeout <= 0 {
		indexTimeout = 10 * time.Minute
	}
	if searchTimeout <= 0 {
		searchTimeout = 60 * time.Second
	}
	return &Worker{
		queue:         q,
		indexer:       di,
		searcher:      se,
		backfill:      bf,
		indexTimeout:  indexTimeout,
		searchTimeout: searchTimeout,
		logger:        logger.Named("worker"),
	}
}

// Start creates the durable consumers and begins consuming. workers
// controls how many concurrent handlers run per subject.
func (w *Worker) Start(ctx context.Context, cfg config.QueueConfig) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	consumers := []struct {
		durable  string
		subject  string
		handler  jetstream.MessageHandler
		parallel int
	}{
		{"indexd_index_workers", SubjectIndex, w.handleIndex(cfg), workers},
		{"indexd_backfill_workers", SubjectBackfill, w.handleBackfill(cfg), 1},
		{"indexd_search_workers", SubjectSearch, w.handleSearch(cfg), workers},
	}

	stream, err := w.queue.js.Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("looking up stream %s: %w", StreamName, err)
	}

	for _, c := range consumers {
		cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       c.durable,
			FilterSubject: c.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       time.Duration(cfg.AckWait),
			MaxDeliver:    cfg.MaxDeliver,
		})
		if err != nil {
			w.Stop()
			return fmt.Errorf("creating consumer %s: %w", c.durable, err)
		}

		for i := 0; i < c.parallel; i++ {
			cc, err := cons.Consume(c.handler)
			if err != nil {
				w.Stop()
				return fmt.Errorf("consuming %s: %w", c.subject, err)
			}
			w.consumeCtxs = append(w.consumeCtxs, cc)
		}
	}

	w.logger.Info("workers started", zap.Int("workers", workers))
	return nil
}

// Stop halts all consumers. In-flight handlers finish.
func (w *Worker) Stop() {
	for _, cc := range w.consumeCtxs {
		cc.Stop()
	}
	w.consumeCtxs = nil
}

func (w *Worker) handleIndex(cfg config.QueueConfig) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		var job IndexJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			w.logger.Error("bad index job payload", zap.Error(err))
			_ = msg.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.indexTimeout)
		defer cancel()
		ctx = logging.WithJobID(ctx, job.JobID)
		log := w.logger.With(logging.ContextFields(ctx)...)

		result, err := w.indexer.IndexDocument(ctx, job.DocumentID, job.Force)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("index job timed out",
				zap.String("document_id", job.DocumentID.String()),
				zap.String("job_status", "timed_out"))
			w.nak(msg, cfg)
		case err != nil:
			log.Warn("index job failed, will retry",
				zap.String("document_id", job.DocumentID.String()),
				zap.Error(err))
			w.nak(msg, cfg)
		default:
			log.Info("index job done",
				zap.String("document_id", job.DocumentID.String()),
				zap.String("job_status", string(result.Status)),
				zap.Int("chunks", result.Chunks))
			_ = msg.Ack()
		}
	}
}

func (w *Worker) handleBackfill(cfg config.QueueConfig) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		var job BackfillJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			w.logger.Error("bad backfill job payload", zap.Error(err))
			_ = msg.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.indexTimeout)
		defer cancel()
		ctx = logging.WithJobID(ctx, job.JobID)
		log := w.logger.With(logging.ContextFields(ctx)...)

		ids, err := w.backfill.ListUnindexedDocumentIDs(ctx)
		if err != nil {
			log.Warn("backfill listing failed, will retry", zap.Error(err))
			w.nak(msg, cfg)
			return
		}

		queued := 0
		for _, id := range ids {
			if _, err := w.queue.EnqueueIndex(ctx, id, false); err != nil {
				log.Error("enqueueing backfill document failed",
					zap.String("document_id", id.String()), zap.Error(err))
				continue
			}
			queued++
		}

		log.Info("backfill swept", zap.Int("queued", queued))
		_ = msg.Ack()
	}
}

func (w *Worker) handleSearch(cfg config.QueueConfig) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		var job SearchJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			w.logger.Error("bad search job payload", zap.Error(err))
			_ = msg.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.searchTimeout)
		defer cancel()
		ctx = logging.WithJobID(ctx, job.JobID)
		log := w.logger.With(logging.ContextFields(ctx)...)

		hits, err := w.searcher.Search(ctx, job.Request)
		switch {
		case errors.Is(err, search.ErrInvalidQuery):
			log.Warn("invalid search job, dropping", zap.Error(err))
			_ = msg.Term()
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("search job timed out", zap.String("job_status", "timed_out"))
			w.nak(msg, cfg)
		case err != nil:
			log.Warn("search job failed, will retry", zap.Error(err))
			w.nak(msg, cfg)
		default:
			log.Info("search job done", zap.Int("hits", len(hits)))
			_ = msg.Ack()
		}
	}
}

func (w *Worker) nak(msg jetstream.Msg, cfg config.QueueConfig) {
	backoff := time.Duration(cfg.NakBackoff)
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	_ = msg.NakWithDelay(backoff)
}
