package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_URL", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"STORE_BACKEND", "QDRANT_URL", "QDRANT_API_KEY", "QDRANT_COLLECTION", "REDIS_URL",
		"SEARCH_ENGINE_FLAVOR", "SEARCH_STRATEGY", "LOG_LEVEL", "METRICS_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "service", cfg.Embedding.Provider)
	assert.Equal(t, "code_chunks", cfg.Storage.Collection)
	assert.Equal(t, "exhaustive", cfg.Search.Strategy)
	assert.Equal(t, 5, cfg.Search.DefaultTopK)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"**/*.py"}, cfg.Indexing.Include)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embedding:
  provider: hash
storage:
  backend: memory
search:
  strategy: native
  default_top_k: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "native", cfg.Search.Strategy)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	// Untouched sections keep their defaults
	assert.Equal(t, "code_chunks", cfg.Storage.Collection)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("SEARCH_ENGINE_FLAVOR", "opensearch")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://qdrant:6333", cfg.Storage.QdrantURL)
	assert.Equal(t, "opensearch", cfg.Search.Strategy)

	t.Setenv("SEARCH_STRATEGY", "exhaustive")
	cfg, err = LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", cfg.Search.Strategy)
}

func TestLoadConfigDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EMBEDDING_PROVIDER=hash\n"), 0o644))

	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "voyage" }},
		{"service without url", func(c *Config) { c.Embedding.URL = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"empty collection", func(c *Config) { c.Storage.Collection = "" }},
		{"unknown strategy", func(c *Config) { c.Search.Strategy = "bm25" }},
		{"zero top k", func(c *Config) { c.Search.DefaultTopK = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Search.Strategy = "native"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadRepoConfig(t *testing.T) {
	dir := t.TempDir()

	rc, err := LoadRepoConfig(dir)
	require.NoError(t, err)
	assert.Empty(t, rc.Name)

	content := "name: payments\nexclude:\n  - \"**/migrations/**\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigFile), []byte(content), 0o644))

	rc, err = LoadRepoConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "payments", rc.Name)
	assert.Equal(t, []string{"**/migrations/**"}, rc.Exclude)
}
