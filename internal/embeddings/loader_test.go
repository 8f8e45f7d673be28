package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
)

type fakeProvider struct {
	dim       int
	docCalls  int
	queryCall int
	closed    bool
	embedErr  error
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.docCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.queryCall++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) Dimension() int { return f.dim }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func newTestLoader(t *testing.T, p Provider, factoryErr error) (*Loader, *int) {
	t.Helper()
	l := NewLoader(config.EmbeddingConfig{Model: "BAAI/bge-small-en-v1.5"}, zap.NewNop())
	loads := 0
	l.factory = func() (Provider, error) {
		loads++
		if factoryErr != nil {
			return nil, factoryErr
		}
		return p, nil
	}
	return l, &loads
}

func TestLoaderLoadsModelOnce(t *testing.T) {
	fake := &fakeProvider{dim: 384}
	l, loads := newTestLoader(t, fake, nil)

	ctx := context.Background()
	_, err := l.EmbedDocuments(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	_, err = l.EmbedDocuments(ctx, []string{"gamma"})
	require.NoError(t, err)
	_, err = l.EmbedQuery(ctx, "delta")
	require.NoError(t, err)

	assert.Equal(t, 1, *loads)
	assert.Equal(t, 2, fake.docCalls)
	assert.Equal(t, 1, fake.queryCall)
}

func TestLoaderEmptyInputSkipsLoad(t *testing.T) {
	fake := &fakeProvider{dim: 384}
	l, loads := newTestLoader(t, fake, nil)

	vectors, err := l.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 0, *loads)
}

func TestLoaderRetriesFailedLoad(t *testing.T) {
	l := NewLoader(config.EmbeddingConfig{Model: "BAAI/bge-small-en-v1.5"}, zap.NewNop())
	loads := 0
	loadErr := errors.New("model download failed")
	l.factory = func() (Provider, error) {
		loads++
		if loads == 1 {
			return nil, loadErr
		}
		return &fakeProvider{dim: 384}, nil
	}

	ctx := context.Background()
	_, err := l.EmbedQuery(ctx, "first")
	require.ErrorIs(t, err, ErrModelUnavailable)
	require.Contains(t, err.Error(), loadErr.Error())

	vector, err := l.EmbedQuery(ctx, "second")
	require.NoError(t, err)
	assert.Len(t, vector, 384)
	assert.Equal(t, 2, loads)
}

func TestLoaderDimensionWithoutLoad(t *testing.T) {
	fake := &fakeProvider{dim: 384}
	l, loads := newTestLoader(t, fake, nil)

	assert.Equal(t, 384, l.Dimension())
	assert.Equal(t, 0, *loads)
}

func TestLoaderClose(t *testing.T) {
	fake := &fakeProvider{dim: 384}
	l, _ := newTestLoader(t, fake, nil)

	// Close before any load is a no-op.
	require.NoError(t, l.Close())
	assert.False(t, fake.closed)

	_, err := l.EmbedQuery(context.Background(), "warm up")
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.True(t, fake.closed)
}

func TestLoaderCanceledContext(t *testing.T) {
	fake := &fakeProvider{dim: 384}
	l, _ := newTestLoader(t, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Drain the load slot so get blocks on the context.
	<-l.loadCh
	_, err := l.EmbedQuery(ctx, "query")
	assert.ErrorIs(t, err, context.Canceled)
	l.loadCh <- struct{}{}
}

func TestDetectDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-small-zh-v1.5", 512},
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"custom/base-model", 768},
		{"custom/large-model", 1024},
		{"something-else", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDimension(tt.model))
		})
	}
}
