// Package config provides configuration loading for indexd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the indexd daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Queue     QueueConfig     `koanf:"queue"`
	Indexing  IndexingConfig  `koanf:"indexing"`
	Search    SearchConfig    `koanf:"search"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// PostgresConfig holds ground-truth store settings.
type PostgresConfig struct {
	DSN      Secret `koanf:"dsn"`
	MaxConns int    `koanf:"max_conns"`
}

// QdrantConfig holds vector index connection settings.
type QdrantConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	UseTLS          bool     `koanf:"use_tls"`
	PartitionPrefix string   `koanf:"partition_prefix"`
	InsertBatchSize int      `koanf:"insert_batch_size"`
	MaxRetries      int      `koanf:"max_retries"`
	RetryBackoff    Duration `koanf:"retry_backoff"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model     string `koanf:"model"`
	CacheDir  string `koanf:"cache_dir"`
	BatchSize int    `koanf:"batch_size"`
}

// QueueConfig holds NATS JetStream settings.
type QueueConfig struct {
	URL        string   `koanf:"url"`
	Embedded   bool     `koanf:"embedded"`
	Workers    int      `koanf:"workers"`
	MaxDeliver int      `koanf:"max_deliver"`
	AckWait    Duration `koanf:"ack_wait"`
	NakBackoff Duration `koanf:"nak_backoff"`
}

// IndexingConfig holds chunking and index-run settings.
type IndexingConfig struct {
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	MaxFileSize  int64    `koanf:"max_file_size"`
	JobTimeout   Duration `koanf:"job_timeout"`
}

// SearchConfig holds query execution settings.
type SearchConfig struct {
	DefaultTopK    int      `koanf:"default_top_k"`
	CacheTTL       Duration `koanf:"cache_ttl"`
	CacheSize      int      `koanf:"cache_size"`
	WaitTimeout    Duration `koanf:"wait_timeout"`
	PreviewKey     Secret   `koanf:"preview_key"`
	PreviewTTL     Duration `koanf:"preview_ttl"`
	PreviewBaseURL string   `koanf:"preview_base_url"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OTEL exporter settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// NewDefaultConfig returns a Config populated with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Postgres: PostgresConfig{
			MaxConns: 8,
		},
		Qdrant: QdrantConfig{
			Host:            "localhost",
			Port:            6334,
			PartitionPrefix: "docchunks_tenant_",
			InsertBatchSize: 100,
			MaxRetries:      3,
			RetryBackoff:    Duration(time.Second),
		},
		Embedding: EmbeddingConfig{
			Model:     "BAAI/bge-small-en-v1.5",
			BatchSize: 256,
		},
		Queue: QueueConfig{
			URL:        "nats://localhost:4222",
			Workers:    4,
			MaxDeliver: 5,
			AckWait:    Duration(15 * time.Minute),
			NakBackoff: Duration(5 * time.Second),
		},
		Indexing: IndexingConfig{
			ChunkSize:    500,
			ChunkOverlap: 100,
			MaxFileSize:  32 * 1024 * 1024,
			JobTimeout:   Duration(10 * time.Minute),
		},
		Search: SearchConfig{
			DefaultTopK: 5,
			CacheTTL:    Duration(6 * time.Hour),
			CacheSize:   4096,
			WaitTimeout: Duration(60 * time.Second),
			PreviewTTL:  Duration(15 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "indexd",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if !c.Postgres.DSN.IsSet() {
		return fmt.Errorf("%w: postgres dsn required", ErrInvalidConfig)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Qdrant.Port)
	}
	if c.Qdrant.InsertBatchSize <= 0 {
		return fmt.Errorf("%w: insert batch size must be positive", ErrInvalidConfig)
	}
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("%w: at least one worker required", ErrInvalidConfig)
	}
	if c.Search.DefaultTopK <= 0 {
		return fmt.Errorf("%w: default top_k must be positive", ErrInvalidConfig)
	}
	return nil
}
