package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INDEXD_POSTGRES_DSN", "postgres://indexd@localhost/indexd")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.Model)
	assert.Equal(t, 500, cfg.Indexing.ChunkSize)
	assert.Equal(t, 100, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, 6*time.Hour, cfg.Search.CacheTTL.Duration())
	assert.Equal(t, 60*time.Second, cfg.Search.WaitTimeout.Duration())
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("INDEXD_POSTGRES_DSN", "postgres://indexd@localhost/indexd")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
qdrant:
  host: qdrant.internal
  insert_batch_size: 50
search:
  cache_ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 50, cfg.Qdrant.InsertBatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Search.CacheTTL.Duration())
	// Untouched fields keep defaults.
	assert.Equal(t, 4, cfg.Queue.Workers)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("INDEXD_POSTGRES_DSN", "postgres://indexd@localhost/indexd")
	t.Setenv("INDEXD_SERVER_PORT", "7070")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing dsn", func(c *Config) { c.Postgres.DSN = "" }},
		{"bad server port", func(c *Config) { c.Server.Port = -1 }},
		{"empty qdrant host", func(c *Config) { c.Qdrant.Host = "" }},
		{"zero chunk size", func(c *Config) { c.Indexing.ChunkSize = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.Indexing.ChunkOverlap = 500 }},
		{"no workers", func(c *Config) { c.Queue.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Postgres.DSN = "postgres://indexd@localhost/indexd"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestTransformEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", transformEnvKey("INDEXD_SERVER_PORT"))
	assert.Equal(t, "search.cache_ttl", transformEnvKey("INDEXD_SEARCH_CACHE_TTL"))
	assert.Equal(t, "qdrant.insert_batch_size", transformEnvKey("INDEXD_QDRANT_INSERT_BATCH_SIZE"))
}
