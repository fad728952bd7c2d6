package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/server/ratelimit"
	"github.com/jonathan/news-ingest/internal/types"
)

const testSecret = "test-secret-key-for-jwt-signing"

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: testSecret, TTL: time.Hour, Issuer: config.DefaultJWTIssuer}
}

// fakeRunner records a summary in the ledger the way the orchestrator does. With
// block set it waits for cancellation and aborts.
type fakeRunner struct {
	ledger  corpus.RunLedger
	block   bool
	fail    error
	started chan string
}

func (f *fakeRunner) RunWithID(ctx context.Context, runID string, criteria types.Criteria, onProgress pipeline.ProgressCallback) (*types.IngestionRun, error) {
	run := &types.IngestionRun{
		ID:                runID,
		Criteria:          criteria,
		State:             types.StateFetching,
		StartedAt:         time.Now(),
		ListingTotalCount: 3,
		Counts:            types.RunCounts{Discovered: 3},
	}
	if onProgress != nil {
		onProgress(pipeline.ProgressEvent{RunID: runID, Stage: types.StateFetching, Message: "Fetching 3 articles", Progress: 0.1, Counts: run.Counts})
	}
	if f.started != nil {
		f.started <- runID
	}

	var err error
	switch {
	case f.block:
		<-ctx.Done()
		err = &pipeline.AbortError{RunID: runID, State: types.StateFetching, Cause: ctx.Err()}
	case f.fail != nil:
		err = &pipeline.AbortError{RunID: runID, State: types.StateDiscovering, Cause: f.fail}
	default:
		run.State = types.StateCompleted
		run.Counts = types.RunCounts{Discovered: 3, Fetched: 2, Accepted: 1, Rejected: 1, Failed: 1}
	}
	if err != nil {
		run.State = types.StateAborted
		run.Error = err.Error()
	}

	finished := time.Now()
	run.FinishedAt = &finished
	if f.ledger != nil {
		_ = f.ledger.SaveRun(context.WithoutCancel(ctx), run)
	}
	return run, err
}

type testEnv struct {
	t      *testing.T
	srv    *Server
	store  *corpus.MemoryStore
	runner *fakeRunner
}

func newTestEnv(t *testing.T, runner *fakeRunner, limits *ratelimit.Config) *testEnv {
	t.Helper()
	store := corpus.NewMemoryStore()
	if runner == nil {
		runner = &fakeRunner{}
	}
	runner.ledger = store
	if limits == nil {
		limits = &ratelimit.Config{Enabled: false}
	}

	srv, err := New(Config{
		Backend:   store,
		Runner:    runner,
		JWT:       testJWTConfig(),
		Passwords: &config.PasswordConfig{BcryptCost: bcrypt.MinCost},
		RateLimit: limits,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testEnv{t: t, srv: srv, store: store, runner: runner}
}

// do sends a request through the full middleware chain.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:4242"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// register creates an owner and returns its token.
func (e *testEnv) register(username string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/auth/register", "", types.RegisterOwnerRequest{Username: username, Password: "correct-horse"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp types.LoginResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func acmeRunRequest() RunRequest {
	return RunRequest{Company: "Acme", From: "2024-01-01", To: "2024-01-31", Keywords: []string{"battery"}}
}
