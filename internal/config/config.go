// Package config holds all soccode configuration: provider credentials,
// model defaults, retrieval settings, and logging. Configuration is loaded
// from a YAML file with environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all soccode configuration.
type Config struct {
	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector search configuration
	Search SearchConfig `yaml:"search"`

	// Chat completion configuration
	Completion CompletionConfig `yaml:"completion"`

	// Candidate retrieval settings
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, genai
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`
}

// SearchConfig configures the vector search backend.
type SearchConfig struct {
	Provider string `yaml:"provider"` // pinecone, local
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	// Indexes maps index names to their pre-provisioned service hosts.
	Indexes map[string]string `yaml:"indexes"`
	// DatabasePath backs the local SQLite index.
	DatabasePath string `yaml:"database_path"`
	Timeout      string `yaml:"timeout"`
}

// CompletionConfig configures the chat completion client.
type CompletionConfig struct {
	Provider string `yaml:"provider"` // openai, genai
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// RetrievalConfig configures candidate shortlist retrieval.
type RetrievalConfig struct {
	// DefaultIndex is queried when the caller names none.
	DefaultIndex string `yaml:"default_index"`

	// DefaultK is the shortlist size when the caller supplies none.
	DefaultK int `yaml:"default_k"`

	// TitleDescriptionIndexes are indexes whose hits carry descriptive
	// metadata; their results are mapped to descriptions and deduplicated.
	TitleDescriptionIndexes []string `yaml:"title_description_indexes"`

	// CacheCapacity bounds the embedding and shortlist LRU caches.
	CacheCapacity int `yaml:"cache_capacity"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	Dir        string          `yaml:"dir"`
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 512,
			Timeout:    "30s",
		},
		Search: SearchConfig{
			Provider:     "pinecone",
			DatabasePath: "data/soccode.db",
			Timeout:      "30s",
		},
		Completion: CompletionConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  "120s",
		},
		Retrieval: RetrievalConfig{
			DefaultIndex:            "soc4d",
			DefaultK:                10,
			TitleDescriptionIndexes: []string{"soccode-index"},
			CacheCapacity:           2000,
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables always override credentials.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides for credentials.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Embedding.Provider == "openai" || c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
		if c.Completion.Provider == "openai" || c.Completion.APIKey == "" {
			c.Completion.APIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.Embedding.Provider == "genai" {
			c.Embedding.APIKey = key
		}
		if c.Completion.Provider == "genai" {
			c.Completion.APIKey = key
		}
	}
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		c.Search.APIKey = key
	}
	if host := os.Getenv("PINECONE_HOST"); host != "" {
		c.Search.BaseURL = host
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("completion model required")
	}
	if c.Retrieval.DefaultK <= 0 {
		return fmt.Errorf("default k must be positive, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Retrieval.CacheCapacity)
	}
	return nil
}

// EmbeddingTimeout returns the embedding timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return parseDuration(c.Embedding.Timeout, 30*time.Second)
}

// SearchTimeout returns the vector search timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 30*time.Second)
}

// CompletionTimeout returns the completion timeout as a duration.
func (c *Config) CompletionTimeout() time.Duration {
	return parseDuration(c.Completion.Timeout, 120*time.Second)
}

// IsTitleDescriptionIndex reports whether hits from the named index carry
// descriptive metadata rather than bare codes.
func (c *Config) IsTitleDescriptionIndex(index string) bool {
	for _, name := range c.Retrieval.TitleDescriptionIndexes {
		if name == index {
			return true
		}
	}
	return false
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
