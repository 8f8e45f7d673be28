// Package store is the Postgres ground-truth store: the document
// registry, chunk rows with their embeddings, and the search query
// audit log. The vector index can always be rebuilt from this store.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a pgx connection pool with the repositories used by the
// indexing and search paths.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects a pgx pool using cfg and registers the pgvector types
// on every connection.
func New(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.Named("store"),
	}, nil
}

// Migrate applies the embedded schema. Statements are idempotent, so
// running it on every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	s.logger.Info("schema applied")
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
