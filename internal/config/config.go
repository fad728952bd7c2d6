// Package config provides configuration loading and validation for the CLI and API server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults for the recognized options
const (
	DefaultPermits               = 10
	DefaultRequestTimeoutSeconds = 10
	DefaultMaxAttempts           = 10
	DefaultMinDelayMS            = 1000
	DefaultMaxDelayMS            = 10000
	DefaultMultiplier            = 2.0
	DefaultClassifierAttempts    = 5
	DefaultClassifierConcurrency = 4
	DefaultClassifierMaxChars    = 6000
	DefaultBatchSize             = 10
	DefaultLogLevel              = "info"
	DefaultLLMProvider           = "gemini"
	DefaultListingBaseURL        = "https://search.hankyung.com/search/news"
)

// DefaultUserAgents is the identity rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; SM-G991N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
}

// RetryConfig holds backoff settings for one retried operation.
// The delays are pointers because an explicit 0 is meaningful: no base delay,
// or no cap. nil means unset.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"gte=0,lte=100"`
	MinDelayMS  *int    `json:"min_delay_ms,omitempty" yaml:"min_delay_ms,omitempty" validate:"omitempty,gte=0"`
	MaxDelayMS  *int    `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty" validate:"omitempty,gte=0"`
	Multiplier  float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty" validate:"gte=0"`
}

// Millis returns a pointer to ms for the RetryConfig delay fields.
func Millis(ms int) *int {
	return &ms
}

// MinDelay returns the base delay as a duration
func (r RetryConfig) MinDelay() time.Duration {
	return millis(r.MinDelayMS)
}

// MaxDelay returns the per-attempt delay cap as a duration
func (r RetryConfig) MaxDelay() time.Duration {
	return millis(r.MaxDelayMS)
}

func millis(ms *int) time.Duration {
	if ms == nil {
		return 0
	}
	return time.Duration(*ms) * time.Millisecond
}

func (r RetryConfig) merge(defaults RetryConfig) RetryConfig {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = defaults.MaxAttempts
	}
	if r.MinDelayMS == nil {
		r.MinDelayMS = defaults.MinDelayMS
	}
	if r.MaxDelayMS == nil {
		r.MaxDelayMS = defaults.MaxDelayMS
	}
	if r.Multiplier == 0 {
		r.Multiplier = defaults.Multiplier
	}
	return r
}

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Storage
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`   // Local SQLite file, used when no database_url

	// Classifier
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`                                               // Gemini API key
	LLMProvider string `json:"llm_provider,omitempty" yaml:"llm_provider,omitempty" validate:"omitempty,oneof=gemini ollama"` // gemini or ollama
	LLMModel    string `json:"llm_model,omitempty" yaml:"llm_model,omitempty"`                                           // Overrides the lite-tier model

	// Fetching
	UserAgents            []string `json:"user_agents,omitempty" yaml:"user_agents,omitempty" validate:"omitempty,dive,required"`
	Permits               int      `json:"permits,omitempty" yaml:"permits,omitempty" validate:"omitempty,min=1,max=50"`
	RequestTimeoutSeconds int      `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty" validate:"gte=0"`
	RequestsPerSecond     float64  `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" validate:"gte=0"`
	UseBrowser            bool     `json:"use_browser,omitempty" yaml:"use_browser,omitempty"`
	ListingBaseURL        string   `json:"listing_base_url,omitempty" yaml:"listing_base_url,omitempty" validate:"omitempty,url"`
	MaxPages              int      `json:"max_pages,omitempty" yaml:"max_pages,omitempty" validate:"gte=0"`

	// Retry
	Retry           RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	ClassifierRetry RetryConfig `json:"classifier_retry,omitempty" yaml:"classifier_retry,omitempty"`

	// Filtering and persistence
	ClassifierConcurrency int  `json:"classifier_concurrency,omitempty" yaml:"classifier_concurrency,omitempty" validate:"gte=0,lte=64"`
	ClassifierMaxChars    int  `json:"classifier_max_chars,omitempty" yaml:"classifier_max_chars,omitempty" validate:"gte=0"`
	BatchSize             int  `json:"batch_size,omitempty" yaml:"batch_size,omitempty" validate:"gte=0"`
	ForceRefresh          bool `json:"force_refresh,omitempty" yaml:"force_refresh,omitempty"`
	KeepRejected          bool `json:"keep_rejected,omitempty" yaml:"keep_rejected,omitempty"`

	// Logging
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFile  string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	Verbose  bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the configuration used for any option left unset.
func Defaults() Config {
	return Config{
		LLMProvider:           DefaultLLMProvider,
		UserAgents:            append([]string(nil), DefaultUserAgents...),
		Permits:               DefaultPermits,
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		ListingBaseURL:        DefaultListingBaseURL,
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			MinDelayMS:  Millis(DefaultMinDelayMS),
			MaxDelayMS:  Millis(DefaultMaxDelayMS),
			Multiplier:  DefaultMultiplier,
		},
		ClassifierRetry: RetryConfig{
			MaxAttempts: DefaultClassifierAttempts,
			MinDelayMS:  Millis(DefaultMinDelayMS),
			MaxDelayMS:  Millis(DefaultMaxDelayMS),
			Multiplier:  DefaultMultiplier,
		},
		ClassifierConcurrency: DefaultClassifierConcurrency,
		ClassifierMaxChars:    DefaultClassifierMaxChars,
		BatchSize:             DefaultBatchSize,
		LogLevel:              DefaultLogLevel,
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		return fmt.Errorf("config error: 'database_url' and 'sqlite_path' are mutually exclusive")
	}

	for name, r := range map[string]RetryConfig{"retry": c.Retry, "classifier_retry": c.ClassifierRetry} {
		if r.MaxDelay() > 0 && r.MinDelay() > r.MaxDelay() {
			return fmt.Errorf("config error: '%s.min_delay_ms' must not exceed '%s.max_delay_ms'", name, name)
		}
		if r.Multiplier != 0 && r.Multiplier < 1 {
			return fmt.Errorf("config error: '%s.multiplier' must be at least 1", name)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" && result.SQLitePath == "" {
		result.DatabaseURL = defaults.DatabaseURL
		result.SQLitePath = defaults.SQLitePath
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.LLMProvider == "" {
		result.LLMProvider = defaults.LLMProvider
	}
	if result.LLMModel == "" {
		result.LLMModel = defaults.LLMModel
	}
	if result.ListingBaseURL == "" {
		result.ListingBaseURL = defaults.ListingBaseURL
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFile == "" {
		result.LogFile = defaults.LogFile
	}
	if len(result.UserAgents) == 0 {
		result.UserAgents = append([]string(nil), defaults.UserAgents...)
	}

	// Int fields: use default if zero
	if result.Permits == 0 {
		result.Permits = defaults.Permits
	}
	if result.RequestTimeoutSeconds == 0 {
		result.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if result.ClassifierConcurrency == 0 {
		result.ClassifierConcurrency = defaults.ClassifierConcurrency
	}
	if result.ClassifierMaxChars == 0 {
		result.ClassifierMaxChars = defaults.ClassifierMaxChars
	}
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = defaults.RequestsPerSecond
	}

	result.Retry = result.Retry.merge(defaults.Retry)
	result.ClassifierRetry = result.ClassifierRetry.merge(defaults.ClassifierRetry)

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// RequestTimeout returns the per-request timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
