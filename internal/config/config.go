// Package config loads sqlscout configuration from YAML with environment
// variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sqlscout configuration.
type Config struct {
	// Workspace root; caches, logs and indexes live under <workspace>/.scout.
	Workspace string `yaml:"workspace"`

	// LLM chat provider.
	LLM LLMConfig `yaml:"llm"`

	// Embedding provider and cache.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Per-dataset variants (spider, bird, spider2-lite-sqlite, ...).
	Datasets map[string]DatasetConfig `yaml:"datasets"`

	// Batch execution settings.
	Batch BatchConfig `yaml:"batch"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"` // OpenAI-compatible endpoint
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	Samples     int     `yaml:"samples"` // candidate completions per turn (n)
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai" or "genai"
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TaskType   string `yaml:"task_type"` // genai only
	CachePath  string `yaml:"cache_path"`
	Dimensions int    `yaml:"dimensions"`
}

// DatasetConfig describes one dataset variant.
type DatasetConfig struct {
	// DatabaseDirs are searched in order for <db>/<db>.sqlite.
	DatabaseDirs []string `yaml:"database_dirs"`

	// PromptDir holds tool_desc.txt and per-database demonstration folders.
	PromptDir string `yaml:"prompt_dir"`

	// DataPath is the question list JSON.
	DataPath string `yaml:"data_path"`

	// IndexPath is the catalog + value index SQLite file built by `scout index`.
	IndexPath string `yaml:"index_path"`

	// SchemaDir holds the generated per-database markdown schema summaries.
	SchemaDir string `yaml:"schema_dir"`

	// Guards toggles the dialect-specific SQL shape rules.
	Guards GuardConfig `yaml:"guards"`

	// SearchTimeout bounds SearchColumn/SearchValue/FindShortestPath.
	SearchTimeout string `yaml:"search_timeout"`

	// SQLTimeout bounds ExecuteSQL.
	SQLTimeout string `yaml:"sql_timeout"`
}

// GuardConfig enables individual SQL guard rules. Each guard fires
// independently and rejects the statement with a corrective message.
type GuardConfig struct {
	DisallowLeftJoin   bool `yaml:"disallow_left_join"`
	DisallowTableAlias bool `yaml:"disallow_table_alias"`
	DisallowInClause   bool `yaml:"disallow_in_clause"`
	DisallowIDEquality bool `yaml:"disallow_id_equality"`
}

// BatchConfig configures the batch driver.
type BatchConfig struct {
	Workers        int    `yaml:"workers"`
	MaxRounds      int    `yaml:"max_rounds"`
	SessionTimeout string `yaml:"session_timeout"`
	SaveDir        string `yaml:"save_dir"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Workspace: ".",
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-2024-05-13",
			Timeout:     "2m",
			Temperature: 0.7,
			TopP:        0.95,
			MaxTokens:   512,
			Samples:     1,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-large",
			CachePath:  ".scout/cache/embeddings.db",
			Dimensions: 3072,
		},
		Datasets: map[string]DatasetConfig{},
		Batch: BatchConfig{
			Workers:        20,
			MaxRounds:      12,
			SessionTimeout: "5m",
			SaveDir:        "save-crossdb-infer-dialog",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a config file, applies defaults for missing values, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides credentials from the environment. Keys in config files
// are discouraged; the env always wins.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCOUT_OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.Embedding.Provider == "openai" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
		if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("SCOUT_GENAI_API_KEY"); v != "" && c.Embedding.Provider == "genai" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("SCOUT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
}

// Validate checks values that would otherwise fail deep inside a session.
func (c *Config) Validate() error {
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers)
	}
	if c.Batch.MaxRounds <= 0 {
		return fmt.Errorf("batch.max_rounds must be positive, got %d", c.Batch.MaxRounds)
	}
	if c.LLM.Samples <= 0 {
		return fmt.Errorf("llm.samples must be positive, got %d", c.LLM.Samples)
	}
	for name, ds := range c.Datasets {
		if len(ds.DatabaseDirs) == 0 {
			return fmt.Errorf("dataset %q: database_dirs is required", name)
		}
	}
	return nil
}

// Dataset returns the named dataset variant.
func (c *Config) Dataset(name string) (DatasetConfig, error) {
	ds, ok := c.Datasets[name]
	if !ok {
		return DatasetConfig{}, fmt.Errorf("dataset %q not configured", name)
	}
	return ds, nil
}

// ParseDuration parses a duration string with a fallback default.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ScoutDir returns <workspace>/.scout, creating it if necessary.
func (c *Config) ScoutDir() (string, error) {
	dir := filepath.Join(c.Workspace, ".scout")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scout dir: %w", err)
	}
	return dir, nil
}
