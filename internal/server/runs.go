package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/types"
)

// Runner executes one ingestion run. *pipeline.Orchestrator implements it.
type Runner interface {
	RunWithID(ctx context.Context, runID string, criteria types.Criteria, onProgress pipeline.ProgressCallback) (*types.IngestionRun, error)
}

// activeRun is a run that has been started and not yet finished.
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	snapshot   types.IngestionRun
	cancelling bool
}

func (a *activeRun) observe(event pipeline.ProgressEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.State = event.Stage
	a.snapshot.Counts = event.Counts
}

// Snapshot returns a copy of the live summary.
func (a *activeRun) Snapshot() types.IngestionRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// status returns the live summary and whether cancellation was requested.
func (a *activeRun) status() (types.IngestionRun, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot, a.cancelling
}

func (a *activeRun) requestCancel() {
	a.mu.Lock()
	a.cancelling = true
	a.mu.Unlock()
	a.cancel()
}

// runRegistry tracks in-flight runs so they can be inspected and cancelled.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun
	wg   sync.WaitGroup
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*activeRun)}
}

// start registers a run and returns its context, derived from parent.
func (r *runRegistry) start(parent context.Context, runID string, criteria types.Criteria, now time.Time) (*activeRun, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	run := &activeRun{
		cancel: cancel,
		done:   make(chan struct{}),
		snapshot: types.IngestionRun{
			ID:        runID,
			Criteria:  criteria,
			State:     types.StateDiscovering,
			StartedAt: now,
		},
	}

	r.mu.Lock()
	r.runs[runID] = run
	r.mu.Unlock()
	r.wg.Add(1)
	return run, ctx
}

// finish unregisters a run once its summary has been recorded.
func (r *runRegistry) finish(runID string) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	delete(r.runs, runID)
	r.mu.Unlock()

	if ok {
		run.cancel()
		close(run.done)
		r.wg.Done()
	}
}

// get returns the active run when it belongs to ownerID.
func (r *runRegistry) get(ownerID, runID string) (*activeRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok || run.snapshot.Criteria.OwnerID != ownerID {
		return nil, false
	}
	return run, true
}

// list returns snapshots of the owner's active runs, newest first.
func (r *runRegistry) list(ownerID string) []types.IngestionRun {
	r.mu.Lock()
	active := make([]*activeRun, 0, len(r.runs))
	for _, run := range r.runs {
		active = append(active, run)
	}
	r.mu.Unlock()

	var out []types.IngestionRun
	for _, run := range active {
		snap := run.Snapshot()
		if snap.Criteria.OwnerID == ownerID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// cancelAll requests cancellation of every active run.
func (r *runRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		run.requestCancel()
	}
}

// wait blocks until every active run has finished or ctx is done.
func (r *runRegistry) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
