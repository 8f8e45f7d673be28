// Package embeddings generates dense vector embeddings for document
// chunks and search queries using local ONNX models.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrModelUnavailable indicates the embedding model could not be loaded
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple passage texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates an embedding for a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// modelDimension returns the embedding dimension for known model names.
func modelDimension(model string) (int, bool) {
	dims := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-small-en":                      384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-base-en":                       768,
		"BAAI/bge-small-zh-v1.5":                 512,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"fast-bge-small-en-v1.5":                 384,
		"fast-bge-small-en":                      384,
		"fast-bge-base-en-v1.5":                  768,
		"fast-bge-base-en":                       768,
		"fast-bge-small-zh-v1.5":                 512,
		"fast-all-MiniLM-L6-v2":                  384,
	}
	dim, ok := dims[model]
	return dim, ok
}

// DetectDimension returns the embedding dimension for a model name,
// falling back to 384 for unknown models.
func DetectDimension(model string) int {
	if dim, ok := modelDimension(model); ok {
		return dim
	}
	switch {
	case contains(model, "base"):
		return 768
	case contains(model, "large"):
		return 1024
	default:
		return 384
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
