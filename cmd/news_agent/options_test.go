package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/news-ingest/internal/config"
)

func TestResolveConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	withFlags(t, func() { configPath = "" })

	cfg, err := resolveConfig(changedSet())
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPermits, cfg.Permits)
	assert.Equal(t, config.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.SQLitePath)
}

func TestResolveConfig_EnvironmentFillsUnsetValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/news")
	t.Setenv("GEMINI_API_KEY", "env-key")
	withFlags(t, func() { configPath = "" })

	cfg, err := resolveConfig(changedSet())
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/news", cfg.DatabaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestResolveConfig_FlagsOverrideFileAndEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/news")
	t.Setenv("GEMINI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: file-key
permits: 7
log_level: warn
retry:
  max_attempts: 4
`), 0o600))

	withFlags(t, func() {
		configPath = path
		sqlitePath = filepath.Join(t.TempDir(), "corpus.db")
		apiKey = "flag-key"
	})

	cfg, err := resolveConfig(changedSet("sqlite", "api-key"))
	require.NoError(t, err)

	assert.Equal(t, "flag-key", cfg.APIKey)
	assert.Equal(t, sqlitePath, cfg.SQLitePath)
	assert.Empty(t, cfg.DatabaseURL, "an explicit sqlite path keeps DATABASE_URL out")
	assert.Equal(t, 7, cfg.Permits)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Duration(config.DefaultMinDelayMS)*time.Millisecond, cfg.Retry.MinDelay())
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestResolveConfig_VerboseRaisesLogLevel(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	withFlags(t, func() {
		configPath = ""
		verbose = true
	})

	cfg, err := resolveConfig(changedSet("verbose"))
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestResolveConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"permits": 80}`), 0o600))
	withFlags(t, func() { configPath = path })

	_, err := resolveConfig(changedSet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Permits")

	withFlags(t, func() { configPath = filepath.Join(t.TempDir(), "missing.json") })
	_, err = resolveConfig(changedSet())
	assert.ErrorContains(t, err, "failed to load config")
}

func TestRequireAPIKey(t *testing.T) {
	assert.Error(t, requireAPIKey(&config.Config{LLMProvider: "gemini"}))
	assert.NoError(t, requireAPIKey(&config.Config{LLMProvider: "gemini", APIKey: "k"}))
	assert.NoError(t, requireAPIKey(&config.Config{LLMProvider: "ollama"}))
}

func TestRequireDurableStore(t *testing.T) {
	assert.ErrorContains(t, requireDurableStore(&config.Config{}, "news_agent corpus list"), "news_agent corpus list")
	assert.NoError(t, requireDurableStore(&config.Config{SQLitePath: "corpus.db"}, "migrate"))
	assert.NoError(t, requireDurableStore(&config.Config{DatabaseURL: "postgres://x"}, "migrate"))
}

func TestCommandsAreRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"ingest"}, {"corpus", "list"}, {"corpus", "reset"}, {"runs", "list"}, {"migrate"}, {"serve"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
