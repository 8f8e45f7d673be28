package vectorstore

import (
	"time"

	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
)

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

func storeConfig(host string) config.QdrantConfig {
	return config.QdrantConfig{
		Host:            host,
		Port:            6334,
		PartitionPrefix: "docchunks_tenant_",
		InsertBatchSize: 100,
		MaxRetries:      1,
		RetryBackoff:    config.Duration(10 * time.Millisecond),
	}
}
