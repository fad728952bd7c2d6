// Package pipeline provides the orchestration of one ingestion run: discovery, gated
// article fetching, suitability filtering and persistence into the corpus.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/discovery"
	"github.com/jonathan/news-ingest/internal/fetch"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/retry"
	"github.com/jonathan/news-ingest/internal/suitability"
	"github.com/jonathan/news-ingest/internal/types"
)

// DefaultDrainTimeout bounds the flush of already-accepted records after cancellation.
const DefaultDrainTimeout = 30 * time.Second

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	RunID    string          `json:"run_id"`
	Stage    types.RunState  `json:"stage"`
	Message  string          `json:"message"`
	Progress float64         `json:"progress"` // 0..1 across the whole run
	Counts   types.RunCounts `json:"counts"`
}

// ProgressCallback is called when pipeline progress occurs. Calls are serialized.
type ProgressCallback func(event ProgressEvent)

// Classifier decides the suitability of one article.
type Classifier interface {
	Evaluate(ctx context.Context, article *types.ArticleRecord) (suitability.Verdict, error)
}

// AbortError is returned when a run ends in the Aborted state. The run summary is
// returned alongside it.
type AbortError struct {
	RunID string
	State types.RunState // state the run was in when it aborted
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("ingestion run %s aborted during %s: %v", e.RunID, e.State, e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// Deps are the collaborators of an Orchestrator. Ledger is optional.
type Deps struct {
	Fetcher    fetch.Fetcher
	Discoverer *discovery.Discoverer
	Classifier Classifier
	Store      corpus.Store
	Ledger     corpus.RunLedger
	Logger     logrus.FieldLogger
}

// Options tunes an Orchestrator. Zero values take the configuration defaults.
type Options struct {
	Permits               int
	Retry                 retry.Policy
	ClassifierConcurrency int
	BatchSize             int
	// KeepRejected also persists rejected records so later runs skip them.
	KeepRejected bool
	DrainTimeout time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Permits <= 0 {
		o.Permits = config.DefaultPermits
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultPolicy()
	}
	if o.ClassifierConcurrency <= 0 {
		o.ClassifierConcurrency = config.DefaultClassifierConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = config.DefaultBatchSize
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator runs ingestion. It holds no per-run state and may run several
// ingestions concurrently; each run gets its own permit pool and counters.
type Orchestrator struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		opts: opts.withDefaults(),
		log:  logging.OrDefault(deps.Logger),
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes one ingestion with a generated run ID.
func (o *Orchestrator) Run(ctx context.Context, criteria types.Criteria, onProgress ProgressCallback) (*types.IngestionRun, error) {
	return o.RunWithID(ctx, NewRunID(), criteria, onProgress)
}

// RunWithID executes one ingestion. The returned summary is never nil. The error is
// nil when the run completed and an *AbortError otherwise.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, criteria types.Criteria, onProgress ProgressCallback) (*types.IngestionRun, error) {
	r := newRunner(o, runID, criteria, onProgress)
	r.execute(ctx)
	return r.finish(ctx)
}
