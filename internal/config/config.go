// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds global configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "service" | "openai" | "hash"
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type StorageConfig struct {
	Backend      string `yaml:"backend"` // "qdrant" | "memory"
	QdrantURL    string `yaml:"qdrant_url"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	Collection   string `yaml:"collection"`
	RedisURL     string `yaml:"redis_url"`
}

type SearchConfig struct {
	Strategy        string `yaml:"strategy"` // "exhaustive" | "native"
	DefaultTopK     int    `yaml:"default_top_k"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"` // 0 disables the query cache
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	EmbedAddr string `yaml:"embed_addr"`
}

type IndexingConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Workers int      `yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // error|warn|info|debug
	Format string `yaml:"format"` // text|json
}

type MetricsConfig struct {
	Path string `yaml:"path"` // empty disables the metrics log
}

// RepoConfig holds per-repository overrides
type RepoConfig struct {
	Name    string   `yaml:"name"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// RepoConfigFile is the per-repository config file name.
const RepoConfigFile = ".code-search.yaml"

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "service",
			URL:       "http://localhost:8001",
			Model:     "all-MiniLM-L6-v2",
			BatchSize: 64,
		},
		Storage: StorageConfig{
			Backend:    "qdrant",
			QdrantURL:  "http://localhost:6333",
			Collection: "code_chunks",
			RedisURL:   "redis://localhost:6379",
		},
		Search: SearchConfig{
			Strategy:        "exhaustive",
			DefaultTopK:     5,
			CacheTTLMinutes: 10,
		},
		Server: ServerConfig{
			Addr:      ":8000",
			EmbedAddr: ":8001",
		},
		Indexing: IndexingConfig{
			Include: []string{"**/*.py"},
			Exclude: []string{
				"**/.git/**",
				"**/__pycache__/**",
				"**/.venv/**",
				"**/venv/**",
				"**/node_modules/**",
			},
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path: defaultMetricsPath(),
		},
	}
}

func defaultMetricsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "code-search", "metrics.jsonl")
}

// DefaultPath returns ~/.config/code-search/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "code-search", "config.yaml")
}

// LoadConfig loads config from file or returns defaults, then applies any
// .env file in the working directory and environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Existing environment variables win over .env entries
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.ApplyEnv()

	return cfg, nil
}

// ApplyEnv overrides config values from environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.URL, "EMBEDDING_URL")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&c.Storage.Backend, "STORE_BACKEND")
	setString(&c.Storage.QdrantURL, "QDRANT_URL")
	setString(&c.Storage.QdrantAPIKey, "QDRANT_API_KEY")
	setString(&c.Storage.Collection, "QDRANT_COLLECTION")
	setString(&c.Storage.RedisURL, "REDIS_URL")
	// SEARCH_ENGINE_FLAVOR is the older name; SEARCH_STRATEGY takes precedence
	setString(&c.Search.Strategy, "SEARCH_ENGINE_FLAVOR")
	setString(&c.Search.Strategy, "SEARCH_STRATEGY")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Metrics.Path, "METRICS_PATH")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	var errs []error

	switch c.Embedding.Provider {
	case "service", "openai":
		if c.Embedding.URL == "" {
			errs = append(errs, fmt.Errorf("embedding.url is required for provider %q", c.Embedding.Provider))
		}
	case "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}

	switch c.Storage.Backend {
	case "qdrant":
		if c.Storage.QdrantURL == "" {
			errs = append(errs, errors.New("storage.qdrant_url is required for the qdrant backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.Collection == "" {
		errs = append(errs, errors.New("storage.collection is required"))
	}

	switch strings.ToLower(c.Search.Strategy) {
	case "exhaustive", "native", "elasticsearch", "opensearch":
	default:
		errs = append(errs, fmt.Errorf("unknown search strategy %q", c.Search.Strategy))
	}
	if c.Search.DefaultTopK <= 0 {
		errs = append(errs, errors.New("search.default_top_k must be positive"))
	}

	switch c.Logging.Level {
	case "error", "warn", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadRepoConfig loads .code-search.yaml from repo root. A missing file
// yields an empty config.
func LoadRepoConfig(repoPath string) (*RepoConfig, error) {
	path := filepath.Join(repoPath, RepoConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RepoConfig{}, nil
		}
		return nil, err
	}

	var rc RepoConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &rc, nil
}
