package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"database_url": "postgres://localhost/news",
		"permits": 20,
		"request_timeout_seconds": 5,
		"retry": {"max_attempts": 3, "min_delay_ms": 100},
		"force_refresh": true
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/news", cfg.DatabaseURL)
	assert.Equal(t, 20, cfg.Permits)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.MinDelay())
	assert.True(t, cfg.ForceRefresh)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	content := `
sqlite_path: ./corpus.db
llm_provider: ollama
llm_model: llama3.2
permits: 5
user_agents:
  - agent-one
  - agent-two
classifier_retry:
  max_attempts: 2
  multiplier: 1.5
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "./corpus.db", cfg.SQLitePath)
	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, []string{"agent-one", "agent-two"}, cfg.UserAgents)
	assert.Equal(t, 2, cfg.ClassifierRetry.MaxAttempts)
	assert.InDelta(t, 1.5, cfg.ClassifierRetry.Multiplier, 0.0001)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{ invalid json }`), 0644))

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("permits: [1, 2"), 0644))

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"permits above range", Config{Permits: 51}, "Permits"},
		{"negative timeout", Config{RequestTimeoutSeconds: -1}, "RequestTimeoutSeconds"},
		{"unknown provider", Config{LLMProvider: "openai"}, "LLMProvider"},
		{"bad listing url", Config{ListingBaseURL: "not a url"}, "ListingBaseURL"},
		{"both stores", Config{DatabaseURL: "postgres://x", SQLitePath: "x.db"}, "mutually exclusive"},
		{"inverted delays", Config{Retry: RetryConfig{MinDelayMS: Millis(500), MaxDelayMS: Millis(100)}}, "min_delay_ms"},
		{"shrinking multiplier", Config{ClassifierRetry: RetryConfig{Multiplier: 0.5}}, "multiplier"},
		{"empty user agent", Config{UserAgents: []string{""}}, "UserAgents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	valid := Defaults()
	assert.NoError(t, valid.Validate())
	assert.NoError(t, (&Config{Permits: 1}).Validate())
	assert.NoError(t, (&Config{Permits: 50}).Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := &Config{
		Permits: 25,
		Retry:   RetryConfig{MaxAttempts: 3},
	}

	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, 25, merged.Permits)
	assert.Equal(t, 3, merged.Retry.MaxAttempts)
	assert.Equal(t, time.Duration(DefaultMinDelayMS)*time.Millisecond, merged.Retry.MinDelay())
	assert.Equal(t, time.Duration(DefaultMaxDelayMS)*time.Millisecond, merged.Retry.MaxDelay())
	assert.InDelta(t, DefaultMultiplier, merged.Retry.Multiplier, 0.0001)
	assert.Equal(t, DefaultClassifierAttempts, merged.ClassifierRetry.MaxAttempts)
	assert.Equal(t, DefaultRequestTimeoutSeconds, merged.RequestTimeoutSeconds)
	assert.Equal(t, DefaultUserAgents, merged.UserAgents)
	assert.Equal(t, DefaultLLMProvider, merged.LLMProvider)
	assert.Equal(t, DefaultBatchSize, merged.BatchSize)

	// Original should be unchanged
	assert.Nil(t, cfg.Retry.MinDelayMS)
}

func TestMergeWithDefaults_KeepsExplicitZeroDelays(t *testing.T) {
	content := `
retry:
  min_delay_ms: 0
  max_delay_ms: 0
classifier_retry:
  max_attempts: 2
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	merged := cfg.MergeWithDefaults(Defaults())
	require.NotNil(t, merged.Retry.MinDelayMS)
	assert.Equal(t, time.Duration(0), merged.Retry.MinDelay())
	assert.Equal(t, time.Duration(0), merged.Retry.MaxDelay())
	assert.Equal(t, DefaultMaxAttempts, merged.Retry.MaxAttempts)

	// Omitted delays still come from the defaults.
	assert.Equal(t, time.Duration(DefaultMinDelayMS)*time.Millisecond, merged.ClassifierRetry.MinDelay())
}

func TestValidate_RejectsNegativeDelay(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{MinDelayMS: Millis(-5)}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MinDelayMS")
}

func TestMergeWithDefaults_StoreSelection(t *testing.T) {
	defaults := Defaults()
	defaults.DatabaseURL = "postgres://default"

	local := &Config{SQLitePath: "local.db"}
	merged := local.MergeWithDefaults(defaults)
	assert.Equal(t, "local.db", merged.SQLitePath)
	assert.Empty(t, merged.DatabaseURL)

	empty := &Config{}
	merged = empty.MergeWithDefaults(defaults)
	assert.Equal(t, "postgres://default", merged.DatabaseURL)
}
