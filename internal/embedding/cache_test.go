package embedding

import (
	"context"
	"path/filepath"
	"testing"
)

// fakeEngine counts calls and returns a deterministic vector per text.
type fakeEngine struct {
	calls int
	name  string
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake-engine"
}

func TestCachedEngineAvoidsRedundantCalls(t *testing.T) {
	inner := &fakeEngine{}
	cache, err := NewCachedEngine(inner, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewCachedEngine failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	v1, err := cache.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	v2, err := cache.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(v1) != 3 || v1[0] != v2[0] {
		t.Errorf("cached vector differs: %v vs %v", v1, v2)
	}
}

func TestCachedEngineBatchPartialMiss(t *testing.T) {
	inner := &fakeEngine{}
	cache, err := NewCachedEngine(inner, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewCachedEngine failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, err := cache.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	vecs, err := cache.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	// a was cached; only one extra inner call for the two misses.
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
	if vecs[2][0] != 3 {
		t.Errorf("vecs[2][0] = %v, want 3", vecs[2][0])
	}
}

func TestCacheKeyIncludesEngineName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	first := &fakeEngine{name: "model-a"}
	cacheA, err := NewCachedEngine(first, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cacheA.Embed(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	cacheA.Close()

	second := &fakeEngine{name: "model-b"}
	cacheB, err := NewCachedEngine(second, path)
	if err != nil {
		t.Fatal(err)
	}
	defer cacheB.Close()
	if _, err := cacheB.Embed(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	if second.calls != 1 {
		t.Errorf("different model name must not hit the other model's cache entry")
	}
}

func TestCosineDistance(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if d > 1e-9 {
		t.Errorf("identical vectors distance = %v, want 0", d)
	}

	d, err = CosineDistance([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if d < 0.999 || d > 1.001 {
		t.Errorf("orthogonal vectors distance = %v, want 1", d)
	}

	if _, err := CosineDistance([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
