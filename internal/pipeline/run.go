package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/news-ingest/internal/fetch"
	"github.com/jonathan/news-ingest/internal/gate"
	"github.com/jonathan/news-ingest/internal/parsing"
	"github.com/jonathan/news-ingest/internal/types"
)

// Share of overall progress reached at the start of each stage.
const (
	progressFetching   = 0.1
	progressFiltering  = 0.6
	progressPersisting = 0.9
)

// runner holds the state of a single run.
type runner struct {
	o          *Orchestrator
	log        logrus.FieldLogger
	gate       *gate.Gate
	onProgress ProgressCallback

	mu      sync.Mutex // guards run and pending
	run     *types.IngestionRun
	pending []*types.ArticleRecord
	aborted *AbortError

	emitMu sync.Mutex
}

func newRunner(o *Orchestrator, runID string, criteria types.Criteria, onProgress ProgressCallback) *runner {
	return &runner{
		o:          o,
		log:        o.log.WithFields(logrus.Fields{"run_id": runID, "owner_id": criteria.OwnerID}),
		gate:       gate.New(o.opts.Permits),
		onProgress: onProgress,
		run: &types.IngestionRun{
			ID:                runID,
			Criteria:          criteria,
			State:             types.StateDiscovering,
			StartedAt:         o.opts.Now().UTC(),
			ListingTotalCount: -1,
		},
	}
}

func (r *runner) execute(ctx context.Context) {
	if err := r.run.Criteria.Validate(); err != nil {
		r.abort(fmt.Errorf("invalid criteria: %w", err))
		return
	}
	r.log.WithField("company", r.run.Criteria.Company).Info("Starting ingestion run")
	r.emit("Discovering article URLs", 0)

	urls, err := r.discover(ctx)
	if err != nil {
		r.abort(err)
		return
	}

	records, err := r.fetchAll(ctx, urls)
	if err != nil {
		r.abort(err)
		return
	}

	if err := r.filterAll(ctx, records); err != nil {
		if ferr := r.flush(ctx, r.takePending()); ferr != nil {
			r.log.WithError(ferr).Error("Failed to flush accepted articles after cancellation")
		}
		r.abort(err)
		return
	}

	if err := r.persistAll(ctx); err != nil {
		r.abort(err)
		return
	}

	r.setState(types.StateCompleted)
	r.emit("Ingestion complete", 1)
}

func (r *runner) discover(ctx context.Context) ([]string, error) {
	disc := r.o.deps.Discoverer.WithGate(r.gate).WithPageFunc(func(page, found, total int) {
		frac := 0.5
		if total > 0 {
			frac = min(float64(found)/float64(total), 1)
		}
		r.emit(fmt.Sprintf("Listing page %d: %d URLs so far", page, found), frac*progressFetching)
	})

	res, err := disc.Discover(ctx, r.run.Criteria)
	if res != nil {
		r.mu.Lock()
		r.run.Counts.Discovered = len(res.URLs)
		r.run.PartialDiscovery = res.Partial
		r.run.ListingTotalCount = res.TotalCount
		r.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	entry := r.log.WithFields(logrus.Fields{"stage": "discover", "urls": len(res.URLs), "pages": res.Pages})
	if res.Partial {
		entry.Warn("Discovery ended early, continuing with partial URL list")
	} else {
		entry.Info("Discovery finished")
	}
	return res.URLs, nil
}

// fetchAll fetches and parses every URL not already in the corpus. Item failures are
// counted, not returned; the error is non-nil only for cancellation or a store failure.
func (r *runner) fetchAll(ctx context.Context, urls []string) ([]*types.ArticleRecord, error) {
	r.setState(types.StateFetching)
	todo, err := r.skipStored(ctx, urls)
	if err != nil {
		return nil, err
	}
	r.emit(fmt.Sprintf("Fetching %d articles", len(todo)), progressFetching)

	var (
		mu      sync.Mutex
		records []*types.ArticleRecord
		done    int
		g       errgroup.Group
	)
	for _, u := range todo {
		task := &types.FetchTask{URL: u}
		g.Go(func() error {
			rec := r.fetchArticle(ctx, task)

			mu.Lock()
			if rec != nil {
				records = append(records, rec)
			}
			done++
			progress := progressFetching + (progressFiltering-progressFetching)*float64(done)/float64(len(todo))
			mu.Unlock()

			r.emit("Fetched "+task.URL, progress)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return records, err
	}
	return records, nil
}

func (r *runner) skipStored(ctx context.Context, urls []string) ([]string, error) {
	if r.run.Criteria.ForceRefresh {
		return urls, nil
	}
	todo := make([]string, 0, len(urls))
	for _, u := range urls {
		exists, err := r.o.deps.Store.Exists(ctx, r.run.Criteria.OwnerID, u)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if exists {
			r.update(func(c *types.RunCounts) { c.Skipped++ })
			continue
		}
		todo = append(todo, u)
	}
	if skipped := len(urls) - len(todo); skipped > 0 {
		r.log.WithField("skipped", skipped).Info("Skipping URLs already in the corpus")
	}
	return todo, nil
}

// fetchArticle runs one FetchTask through the retry policy and the run's permit
// pool, then parses the page. It returns nil when the item failed or was cancelled.
func (r *runner) fetchArticle(ctx context.Context, task *types.FetchTask) *types.ArticleRecord {
	log := r.log.WithFields(logrus.Fields{"stage": "fetch", "url": task.URL})

	policy := r.o.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).WithError(err).Info("Retrying article fetch")
	}

	var res *fetch.Result
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		return r.gate.Do(ctx, func(ctx context.Context) error {
			out, err := r.o.deps.Fetcher.Fetch(ctx, task.URL)
			if err != nil {
				return err
			}
			res = out
			return nil
		})
	})
	task.AttemptCount = attempts
	task.LastError = err
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.WithField("attempts", attempts).WithError(err).Warn("Article fetch failed")
		r.update(func(c *types.RunCounts) { c.Failed++ })
		return nil
	}
	r.update(func(c *types.RunCounts) { c.Fetched++ })

	article, err := parsing.ParseArticle(res.HTML, task.URL)
	if err != nil {
		log.WithError(err).Warn("Article parse failed")
		r.update(func(c *types.RunCounts) { c.Failed++ })
		return nil
	}
	return article.Record(r.run.Criteria.OwnerID, r.run.Criteria.Company, r.o.opts.Now())
}

// filterAll classifies records under the classifier concurrency bound and queues the
// ones to persist.
func (r *runner) filterAll(ctx context.Context, records []*types.ArticleRecord) error {
	r.setState(types.StateFiltering)
	r.emit(fmt.Sprintf("Classifying %d articles", len(records)), progressFiltering)

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(r.o.opts.ClassifierConcurrency)
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.classify(ctx, rec)

			mu.Lock()
			done++
			progress := progressFiltering + (progressPersisting-progressFiltering)*float64(done)/float64(len(records))
			mu.Unlock()

			r.emit("Classified "+rec.URL, progress)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (r *runner) classify(ctx context.Context, rec *types.ArticleRecord) {
	log := r.log.WithFields(logrus.Fields{"stage": "filter", "url": rec.URL})

	verdict, err := r.o.deps.Classifier.Evaluate(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("Suitability check failed")
		r.update(func(c *types.RunCounts) { c.Failed++ })
		return
	}

	rec.Suitability = verdict.Suitability
	keep := verdict.Accepted() || r.o.opts.KeepRejected

	r.mu.Lock()
	if verdict.Accepted() {
		r.run.Counts.Accepted++
	} else {
		r.run.Counts.Rejected++
	}
	if keep {
		r.pending = append(r.pending, rec)
	}
	r.mu.Unlock()

	log.WithField("verdict", verdict.Suitability).Debug("Article classified")
}

// persistAll writes queued records in batches. If the run is cancelled in between,
// the remaining records are still flushed before returning the cancellation.
func (r *runner) persistAll(ctx context.Context) error {
	r.setState(types.StatePersisting)
	recs := r.takePending()
	batch := r.o.opts.BatchSize
	r.emit(fmt.Sprintf("Persisting %d articles", len(recs)), progressPersisting)

	for start := 0; start < len(recs); start += batch {
		end := min(start+batch, len(recs))
		if err := ctx.Err(); err != nil {
			if ferr := r.flush(ctx, recs[start:]); ferr != nil {
				return ferr
			}
			return err
		}
		if err := r.upsertBatch(ctx, recs[start:end]); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if ferr := r.flush(ctx, recs[start:]); ferr != nil {
					return ferr
				}
				return ctxErr
			}
			return err
		}
		r.log.WithFields(logrus.Fields{"stage": "persist", "batch_end": end, "total": len(recs)}).Debug("Persisted batch")
		r.emit(fmt.Sprintf("Persisted %d/%d articles", end, len(recs)),
			progressPersisting+(1-progressPersisting)*float64(end)/float64(len(recs)))
	}
	return nil
}

func (r *runner) upsertBatch(ctx context.Context, recs []*types.ArticleRecord) error {
	for _, rec := range recs {
		if err := r.o.deps.Store.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// flush persists records with a context detached from the run's cancellation.
func (r *runner) flush(ctx context.Context, recs []*types.ArticleRecord) error {
	if len(recs) == 0 {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.opts.DrainTimeout)
	defer cancel()

	r.log.WithField("records", len(recs)).Info("Flushing classified articles before abort")
	return r.upsertBatch(flushCtx, recs)
}

func (r *runner) takePending() []*types.ArticleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.pending
	r.pending = nil
	return recs
}

func (r *runner) setState(state types.RunState) {
	r.mu.Lock()
	r.run.State = state
	r.mu.Unlock()
}

func (r *runner) update(fn func(c *types.RunCounts)) {
	r.mu.Lock()
	fn(&r.run.Counts)
	r.mu.Unlock()
}

func (r *runner) abort(err error) {
	r.mu.Lock()
	state := r.run.State
	r.run.State = types.StateAborted
	r.run.Error = err.Error()
	r.aborted = &AbortError{RunID: r.run.ID, State: state, Cause: err}
	r.mu.Unlock()

	r.log.WithField("stage", state).WithError(err).Error("Ingestion run aborted")
	r.emit(fmt.Sprintf("Run aborted during %s: %v", state, err), 1)
}

func (r *runner) emit(message string, progress float64) {
	if r.onProgress == nil {
		return
	}
	r.mu.Lock()
	event := ProgressEvent{
		RunID:    r.run.ID,
		Stage:    r.run.State,
		Message:  message,
		Progress: progress,
		Counts:   r.run.Counts,
	}
	r.mu.Unlock()

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.onProgress(event)
}

// finish freezes the summary and records it in the ledger.
func (r *runner) finish(ctx context.Context) (*types.IngestionRun, error) {
	r.mu.Lock()
	finished := r.o.opts.Now().UTC()
	r.run.FinishedAt = &finished
	summary := *r.run
	aborted := r.aborted
	r.mu.Unlock()

	if ledger := r.o.deps.Ledger; ledger != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.opts.DrainTimeout)
		defer cancel()
		if err := ledger.SaveRun(saveCtx, &summary); err != nil {
			r.log.WithError(err).Warn("Failed to record run summary")
		}
	}

	r.log.WithFields(logrus.Fields{
		"state":      summary.State,
		"discovered": summary.Counts.Discovered,
		"skipped":    summary.Counts.Skipped,
		"fetched":    summary.Counts.Fetched,
		"accepted":   summary.Counts.Accepted,
		"rejected":   summary.Counts.Rejected,
		"failed":     summary.Counts.Failed,
	}).Info("Ingestion run finished")

	if aborted != nil {
		return &summary, aborted
	}
	return &summary, nil
}
