package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/embeddings"
	"github.com/driftwoodlabs/indexd/internal/indexer"
	"github.com/driftwoodlabs/indexd/internal/logging"
	"github.com/driftwoodlabs/indexd/internal/store"
	"github.com/driftwoodlabs/indexd/internal/tasks"
	"github.com/driftwoodlabs/indexd/internal/vectorstore"
)

var rebuildTenantID int64

func init() {
	rebuildCmd.Flags().Int64Var(&rebuildTenantID, "tenant", 0, "tenant whose partition to rebuild")
	_ = rebuildCmd.MarkFlagRequired("tenant")
}

// backfillCmd queues an index job for every document without chunks.
// The running daemon's workers pick the jobs up.
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Queue index jobs for all unindexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer func() { _ = logging.Sync(logger) }()

		ctx := cmd.Context()
		queue, err := tasks.NewQueue(ctx, cfg.Queue, logger)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer queue.Close()

		jobID, err := queue.EnqueueBackfill(ctx)
		if err != nil {
			return fmt.Errorf("queueing backfill: %w", err)
		}
		fmt.Printf("backfill queued: %s\n", jobID)
		return nil
	},
}

// rebuildCmd drops and repopulates one tenant's vector partition from
// the embeddings stored in Postgres. No re-extraction or re-embedding
// happens.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild a tenant's vector partition from the ground truth",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer func() { _ = logging.Sync(logger) }()

		ctx := cmd.Context()
		st, err := store.New(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer st.Close()

		dim := embeddings.DetectDimension(cfg.Embedding.Model)
		vectors, err := vectorstore.NewQdrantStore(cfg.Qdrant, dim, logger)
		if err != nil {
			return fmt.Errorf("connecting to qdrant: %w", err)
		}
		defer func() { _ = vectors.Close() }()

		idx := indexer.NewService(st, vectors, nil, nil, cfg.Indexing, cfg.Qdrant.PartitionPrefix, logger)
		if err := idx.RebuildPartition(ctx, rebuildTenantID); err != nil {
			return fmt.Errorf("rebuilding tenant %d: %w", rebuildTenantID, err)
		}
		fmt.Printf("tenant %d partition rebuilt\n", rebuildTenantID)
		return nil
	},
}
