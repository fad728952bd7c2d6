package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/logging"
)

// Flags shared by every command
var (
	configPath  string
	databaseURL string
	sqlitePath  string
	apiKey      string
	llmProvider string
	logLevel    string
	verbose     bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")
	flags.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	flags.StringVar(&sqlitePath, "sqlite", "", "Path to a local SQLite corpus file (used instead of PostgreSQL)")
	flags.StringVar(&apiKey, "api-key", "", "Gemini API key (defaults to GEMINI_API_KEY env var)")
	flags.StringVar(&llmProvider, "llm-provider", "", "Classifier provider: gemini or ollama")
	flags.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print progress and detailed output")
}

// resolveConfig merges the config file, explicitly set flags, environment variables
// and defaults, in that order of precedence after flags. changed reports whether a
// flag was set on the command line.
func resolveConfig(changed func(name string) bool) (*config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if changed("database-url") {
		cfg.DatabaseURL = databaseURL
		cfg.SQLitePath = ""
	}
	if changed("sqlite") {
		cfg.SQLitePath = sqlitePath
		cfg.DatabaseURL = ""
	}
	if changed("api-key") {
		cfg.APIKey = apiKey
	}
	if changed("llm-provider") {
		cfg.LLMProvider = llmProvider
	}
	if changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if changed("verbose") {
		cfg.Verbose = verbose
	}

	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if merged.Verbose && !changed("log-level") && cfg.LogLevel == "" {
		merged.LogLevel = "debug"
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// newLogger builds the command logger from the resolved configuration.
func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, nil
}

// requireAPIKey fails early when the configured classifier needs a key that is missing.
func requireAPIKey(cfg *config.Config) error {
	if cfg.LLMProvider == "gemini" && cfg.APIKey == "" {
		return fmt.Errorf("API key is required (set --api-key or the GEMINI_API_KEY env var)")
	}
	return nil
}

// requireDurableStore rejects commands that would only see an empty in-memory store.
func requireDurableStore(cfg *config.Config, command string) error {
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return fmt.Errorf("%s needs a database: set --database-url, --sqlite or DATABASE_URL", command)
	}
	return nil
}
