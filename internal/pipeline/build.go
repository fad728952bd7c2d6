package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/db"
	"github.com/jonathan/news-ingest/internal/discovery"
	"github.com/jonathan/news-ingest/internal/fetch"
	"github.com/jonathan/news-ingest/internal/llm"
	"github.com/jonathan/news-ingest/internal/retry"
	"github.com/jonathan/news-ingest/internal/suitability"
)

// NewFetcher builds the fetch client described by cfg. With use_browser set, thin
// pages are re-rendered in headless Chrome.
func NewFetcher(cfg *config.Config) fetch.Fetcher {
	client := fetch.NewClient(&fetch.Options{
		Timeout:           cfg.RequestTimeout(),
		UserAgents:        cfg.UserAgents,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if !cfg.UseBrowser {
		return client
	}

	userAgent := fetch.DefaultUserAgent
	if len(cfg.UserAgents) > 0 {
		userAgent = cfg.UserAgents[0]
	}
	return &fetch.FallbackFetcher{
		Primary: client,
		Browser: fetch.NewBrowserClient(cfg.RequestTimeout()*3, userAgent),
	}
}

// NewClassifier creates the LLM client for the configured provider and the
// suitability filter on top of it. The caller owns the returned client.
func NewClassifier(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*suitability.Filter, llm.Client, error) {
	provider, err := llm.ParseProvider(cfg.LLMProvider)
	if err != nil {
		return nil, nil, err
	}

	client, err := llm.NewClient(ctx, llm.ConfigFor(provider, cfg.LLMModel), cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}

	filter := suitability.New(client, suitability.Options{
		Retry:    retry.FromConfig(cfg.ClassifierRetry),
		MaxChars: cfg.ClassifierMaxChars,
		Logger:   logger,
	})
	return filter, client, nil
}

// Build wires an Orchestrator from configuration and already-opened collaborators.
// ledger may be nil.
func Build(cfg *config.Config, store corpus.Store, ledger corpus.RunLedger, classifier Classifier, logger logrus.FieldLogger) *Orchestrator {
	fetcher := NewFetcher(cfg)
	policy := retry.FromConfig(cfg.Retry)

	disc := discovery.New(fetcher, discovery.NewHankyungSource(cfg.ListingBaseURL), discovery.Options{
		Retry:      policy,
		MaxPages:   cfg.MaxPages,
		PageJitter: discovery.DefaultPageJitter,
		Logger:     logger,
	})

	return New(Deps{
		Fetcher:    fetcher,
		Discoverer: disc,
		Classifier: classifier,
		Store:      store,
		Ledger:     ledger,
		Logger:     logger,
	}, Options{
		Permits:               cfg.Permits,
		Retry:                 policy,
		ClassifierConcurrency: cfg.ClassifierConcurrency,
		BatchSize:             cfg.BatchSize,
		KeepRejected:          cfg.KeepRejected,
	})
}

// OpenBackend opens the store selected by cfg: Postgres when database_url is set,
// SQLite when sqlite_path is set, otherwise an in-memory store. The SQLite schema is
// always applied; the Postgres schema only when migrate is true.
func OpenBackend(ctx context.Context, cfg *config.Config, migrate bool) (corpus.Backend, error) {
	switch {
	case cfg.DatabaseURL != "":
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx); err != nil {
				_ = database.Close()
				return nil, err
			}
		}
		return database, nil
	case cfg.SQLitePath != "":
		return corpus.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return corpus.NewMemoryStore(), nil
	}
}
