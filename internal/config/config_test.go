package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  model: test-model
  samples: 5
datasets:
  spider:
    database_dirs: ["dataset/spider/test_database"]
    guards:
      disallow_left_join: true
      disallow_in_clause: true
batch:
  workers: 4
  max_rounds: 8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("model = %q, want test-model", cfg.LLM.Model)
	}
	if cfg.LLM.Samples != 5 {
		t.Errorf("samples = %d, want 5", cfg.LLM.Samples)
	}
	if cfg.Batch.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Batch.Workers)
	}

	ds, err := cfg.Dataset("spider")
	if err != nil {
		t.Fatalf("Dataset failed: %v", err)
	}
	if !ds.Guards.DisallowLeftJoin || !ds.Guards.DisallowInClause {
		t.Error("spider guards not loaded")
	}
	if ds.Guards.DisallowTableAlias {
		t.Error("unset guard should be false")
	}
}

func TestLoadRejectsEmptyDatabaseDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
datasets:
  bird: {}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for dataset without database_dirs")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCOUT_OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key not taken from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Error("openai embedding provider should share the key")
	}
}

func TestDatasetMissing(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Dataset("nope"); err == nil {
		t.Fatal("expected error for unknown dataset")
	}
}

func TestParseDuration(t *testing.T) {
	if d := ParseDuration("90s", time.Minute); d != 90*time.Second {
		t.Errorf("ParseDuration = %v, want 90s", d)
	}
	if d := ParseDuration("", time.Minute); d != time.Minute {
		t.Errorf("empty should fall back to default, got %v", d)
	}
	if d := ParseDuration("bogus", time.Minute); d != time.Minute {
		t.Errorf("invalid should fall back to default, got %v", d)
	}
}
