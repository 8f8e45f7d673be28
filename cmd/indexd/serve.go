package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/embeddings"
	"github.com/driftwoodlabs/indexd/internal/extract"
	"github.com/driftwoodlabs/indexd/internal/indexer"
	"github.com/driftwoodlabs/indexd/internal/logging"
	"github.com/driftwoodlabs/indexd/internal/search"
	"github.com/driftwoodlabs/indexd/internal/server"
	"github.com/driftwoodlabs/indexd/internal/store"
	"github.com/driftwoodlabs/indexd/internal/tasks"
	"github.com/driftwoodlabs/indexd/internal/telemetry"
	"github.com/driftwoodlabs/indexd/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the indexd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting indexd",
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.Embedding.Model),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.New(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	dim := embeddings.DetectDimension(cfg.Embedding.Model)
	vectors, err := vectorstore.NewQdrantStore(cfg.Qdrant, dim, logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer func() {
		if err := vectors.Close(); err != nil {
			logger.Warn("closing vector store failed", zap.Error(err))
		}
	}()

	embedder := embeddings.NewLoader(cfg.Embedding, logger)
	defer func() {
		if err := embedder.Close(); err != nil {
			logger.Warn("closing embedder failed", zap.Error(err))
		}
	}()

	extractor := extract.NewService(
		extract.Config{MaxFileSize: cfg.Indexing.MaxFileSize},
		extract.NewExecRunner(),
		logger,
	)

	idx := indexer.NewService(st, vectors, embedder, extractor, cfg.Indexing, cfg.Qdrant.PartitionPrefix, logger)
	executor := search.NewExecutor(vectors, st, embedder, cfg.Search, cfg.Qdrant.PartitionPrefix, logger)

	if cfg.Queue.Embedded {
		storeDir := filepath.Join(os.TempDir(), "indexd-jetstream")
		ns, err := tasks.StartEmbeddedServer(storeDir)
		if err != nil {
			return fmt.Errorf("starting embedded nats: %w", err)
		}
		defer ns.Shutdown()
		cfg.Queue.URL = ns.ClientURL()
		logger.Info("embedded nats started", zap.String("url", cfg.Queue.URL))
	}

	queue, err := tasks.NewQueue(ctx, cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer queue.Close()

	worker := tasks.NewWorker(queue, idx, executor, st,
		cfg.Indexing.JobTimeout.Duration(), cfg.Search.WaitTimeout.Duration(), logger)
	if err := worker.Start(ctx, cfg.Queue); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	defer worker.Stop()

	signer := search.NewURLSigner(
		cfg.Search.PreviewKey.Value(),
		cfg.Search.PreviewBaseURL,
		cfg.Search.PreviewTTL.Duration(),
	)

	srv, err := server.NewServer(queue, executor, st, signer, cfg.Server, cfg.Search, logger)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("indexd stopped")
	return nil
}
