package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"sqlscout/internal/logging"
)

// =============================================================================
// PERSISTENT EMBEDDING CACHE
// =============================================================================

// CachedEngine wraps an Engine with a SQLite-backed cache keyed by
// (text, engine name). Cache content is a pure function of its key, so
// concurrent last-writer-wins upserts through the single shared connection
// are safe.
type CachedEngine struct {
	inner Engine
	db    *sql.DB
	mu    sync.Mutex
}

// NewCachedEngine opens (or creates) the cache database at path and wraps
// the inner engine.
func NewCachedEngine(inner Engine, path string) (*CachedEngine, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	// One writer connection; serializes concurrent workers.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS vec_cache (
		name TEXT PRIMARY KEY,
		vec TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}

	logging.Embedding("Embedding cache opened at %s (engine=%s)", path, inner.Name())
	return &CachedEngine{inner: inner, db: db}, nil
}

// Close closes the cache database.
func (c *CachedEngine) Close() error {
	return c.db.Close()
}

func (c *CachedEngine) key(text string) string {
	return text + c.inner.Name()
}

func (c *CachedEngine) get(text string) ([]float32, bool) {
	var raw string
	err := c.db.QueryRow("SELECT vec FROM vec_cache WHERE name = ?", c.key(text)).Scan(&raw)
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachedEngine) put(text string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	_, err = c.db.Exec("INSERT OR REPLACE INTO vec_cache (name, vec) VALUES (?, ?)", c.key(text), string(raw))
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to write embedding cache: %v", err)
	}
}

// Embed returns the cached embedding or computes and stores it.
func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch resolves cached texts locally and sends only unseen texts to
// the inner engine.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var unseen []string
	for _, t := range texts {
		if _, ok := c.get(t); !ok {
			unseen = append(unseen, t)
		}
	}

	if len(unseen) > 0 {
		logging.EmbeddingDebug("Cache miss for %d/%d texts", len(unseen), len(texts))
		fresh, err := c.inner.EmbedBatch(ctx, unseen)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(unseen) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(fresh), len(unseen))
		}
		for i, t := range unseen {
			c.put(t, fresh[i])
		}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := c.get(t)
		if !ok {
			return nil, fmt.Errorf("embedding for text %d missing after fill", i)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the inner engine's dimensionality.
func (c *CachedEngine) Dimensions() int { return c.inner.Dimensions() }

// Name returns the inner engine's name.
func (c *CachedEngine) Name() string { return c.inner.Name() }
