// Package tasks is the async job layer: a NATS JetStream work queue
// carrying index, backfill, and search jobs to a worker pool.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/search"
)

// Queue publishes jobs onto the INDEXD work-queue stream.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    config.QueueConfig
	logger *zap.Logger
}

// NewQueue connects to NATS and ensures the stream exists.
func NewQueue(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	q := &Queue{
		nc:     nc,
		js:     js,
		cfg:    cfg,
		logger: logger.Named("tasks"),
	}
	if err := q.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	q.logger.Info("connected to NATS", zap.String("url", cfg.URL))
	return q, nil
}

func (q *Queue) ensureStream(ctx context.Context) error {
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectWildcard},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", StreamName, err)
	}
	return nil
}

// EnqueueIndex queues one document for indexing and returns the job ID.
func (q *Queue) EnqueueIndex(ctx context.Context, documentID uuid.UUID, force bool) (string, error) {
	job := IndexJob{JobID: uuid.New().String(), DocumentID: documentID, Force: force}
	if err := q.publish(ctx, SubjectIndex, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// EnqueueBackfill queues a backfill sweep.
func (q *Queue) EnqueueBackfill(ctx context.Context) (string, error) {
	job := BackfillJob{JobID: uuid.New().String()}
	if err := q.publish(ctx, SubjectBackfill, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// EnqueueSearch queues an async search execution.
func (q *Queue) EnqueueSearch(ctx context.Context, req search.Request) (string, error) {
	job := SearchJob{JobID: uuid.New().String(), Request: req}
	if err := q.publish(ctx, SubjectSearch, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}

func (q *Queue) publish(ctx context.Context, subject string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection.
func (q *Queue) Close() {
	if q.nc != nil {
		q.nc.Close()
	}
}
