package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
)

// Loader wraps an embedding provider with lazy, once-per-process
// initialization. The underlying ONNX model is loaded on the first
// embedding call and shared by every caller afterwards, including
// across failures once a load has succeeded.
type Loader struct {
	cfg     config.EmbeddingConfig
	logger  *zap.Logger
	metrics *Metrics

	// factory is swapped out in tests.
	factory func() (Provider, error)

	loadCh   chan struct{}
	provider Provider
	loadErr  error
}

// NewLoader creates a Loader around the FastEmbed provider described
// by cfg. No model files are touched until the first embedding call.
func NewLoader(cfg config.EmbeddingConfig, logger *zap.Logger) *Loader {
	l := &Loader{
		cfg:     cfg,
		logger:  logger.Named("embeddings"),
		metrics: NewMetrics(logger),
		loadCh:  make(chan struct{}, 1),
	}
	l.loadCh <- struct{}{}
	l.factory = func() (Provider, error) {
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			BatchSize: cfg.BatchSize,
		})
	}
	return l
}

// get returns the shared provider, loading the model on first use.
// A failed load is retried on the next call rather than cached.
func (l *Loader) get(ctx context.Context) (Provider, error) {
	select {
	case <-l.loadCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { l.loadCh <- struct{}{} }()

	if l.provider != nil {
		return l.provider, nil
	}

	start := time.Now()
	p, err := l.factory()
	if err != nil {
		l.logger.Error("loading embedding model failed",
			zap.String("model", l.cfg.Model),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	l.logger.Info("embedding model loaded",
		zap.String("model", l.cfg.Model),
		zap.Int("dimension", p.Dimension()),
		zap.Duration("elapsed", time.Since(start)))

	l.provider = p
	return p, nil
}

// EmbedDocuments generates passage embeddings for texts. An empty
// input returns an empty result without loading the model.
func (l *Loader) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	p, err := l.get(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := p.EmbedDocuments(ctx, texts)
	l.metrics.RecordGeneration(ctx, l.cfg.Model, "batch_embed", time.Since(start), len(texts), err)
	return vectors, err
}

// EmbedQuery generates a query embedding for text.
func (l *Loader) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p, err := l.get(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := p.EmbedQuery(ctx, text)
	l.metrics.RecordGeneration(ctx, l.cfg.Model, "embed", time.Since(start), 0, err)
	return vector, err
}

// Dimension returns the embedding dimension of the configured model.
// Known model names resolve without loading the model.
func (l *Loader) Dimension() int {
	return DetectDimension(l.cfg.Model)
}

// Close releases the underlying provider if it was ever loaded.
func (l *Loader) Close() error {
	<-l.loadCh
	defer func() { l.loadCh <- struct{}{} }()

	if l.provider == nil {
		return nil
	}
	err := l.provider.Close()
	l.provider = nil
	return err
}

var _ Provider = (*Loader)(nil)
