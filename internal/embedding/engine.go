// Package embedding provides vector embedding generation for column search.
// Supports OpenAI-compatible endpoints and Google GenAI, with a persistent
// (text, model)-keyed cache shared across runs.
package embedding

import (
	"context"
	"fmt"
	"math"

	"sqlscout/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name, used as part of the cache key.
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "openai" or "genai"
	Provider string

	// OpenAI-compatible configuration
	BaseURL string
	APIKey  string
	Model   string

	// GenAI task type: "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", ...
	TaskType string

	Dimensions int
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine with provider=%s model=%s", cfg.Provider, cfg.Model)

	var engine Engine
	var err error
	switch cfg.Provider {
	case "openai", "":
		engine, err = NewOpenAIEngine(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineDistance returns 1 - cosine similarity between two vectors, so 0
// means identical direction and 2 means opposite.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero vector")
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}
