// Package corpus defines the article store consumed by the ingestion pipeline and
// provides in-memory and SQLite implementations. The Postgres implementation lives
// in package db.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/news-ingest/internal/schemas"
	"github.com/jonathan/news-ingest/internal/types"
)

// Sentinel errors shared by all store implementations
var (
	ErrNotFound      = errors.New("not found")
	ErrOwnerExists   = errors.New("owner already exists")
	ErrUnevaluated   = errors.New("article has no suitability verdict")
	ErrInvalidRecord = errors.New("article record requires owner_id and url")
)

// Error wraps a failure of the backing store. The pipeline treats it as run-level.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("corpus store %s failed: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Query filters a corpus listing. Zero values mean no filter.
type Query struct {
	Company string
	From    *time.Time // inclusive, compared on published_at
	To      *time.Time // inclusive
	// IncludeRejected also returns records stored with a rejected verdict.
	IncludeRejected bool
	Limit           int
}

// Store persists ArticleRecords keyed by (owner_id, url). Upsert is idempotent and
// atomic per record; concurrent upserts of one key are serialized.
type Store interface {
	Upsert(ctx context.Context, rec *types.ArticleRecord) error
	Exists(ctx context.Context, ownerID, url string) (bool, error)
	// List returns records ordered by published date, then URL. Undated records sort last.
	List(ctx context.Context, ownerID string, q Query) ([]types.ArticleRecord, error)
	DeleteOwner(ctx context.Context, ownerID string) (int64, error)
}

// RunLedger records finalized ingestion run summaries.
type RunLedger interface {
	SaveRun(ctx context.Context, run *types.IngestionRun) error
	// GetRun returns ErrNotFound when the run does not exist for the owner.
	GetRun(ctx context.Context, ownerID, runID string) (*types.IngestionRun, error)
	// ListRuns returns the owner's runs, newest first.
	ListRuns(ctx context.Context, ownerID string, limit int) ([]types.IngestionRun, error)
}

// OwnerAccount is a stored operator account
type OwnerAccount struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// OwnerStore persists operator accounts.
type OwnerStore interface {
	// CreateOwner returns ErrOwnerExists when the username is taken.
	CreateOwner(ctx context.Context, username, passwordHash string) (*OwnerAccount, error)
	// GetOwner returns ErrNotFound when no such owner exists.
	GetOwner(ctx context.Context, username string) (*OwnerAccount, error)
}

// Backend bundles every persistence concern of the application.
type Backend interface {
	Store
	RunLedger
	OwnerStore
	Close() error
}

// CheckRecord validates a record before it is written.
func CheckRecord(rec *types.ArticleRecord) error {
	if rec == nil || rec.OwnerID == "" || rec.URL == "" {
		return ErrInvalidRecord
	}
	if !rec.Suitability.IsFinal() {
		return fmt.Errorf("%w: %s", ErrUnevaluated, rec.URL)
	}
	return nil
}

// DecodeRun parses a stored run summary after checking it against the run schema.
func DecodeRun(summary []byte) (*types.IngestionRun, error) {
	if err := schemas.Validate(schemas.IngestionRun, summary); err != nil {
		return nil, &Error{Op: "decode run", Cause: err}
	}
	var run types.IngestionRun
	if err := json.Unmarshal(summary, &run); err != nil {
		return nil, &Error{Op: "decode run", Cause: err}
	}
	return &run, nil
}

// DefaultRunListLimit caps ListRuns when no limit is given
const DefaultRunListLimit = 50

func runLimit(limit int) int {
	if limit <= 0 {
		return DefaultRunListLimit
	}
	return limit
}

// dayString formats a date for storage; nil becomes NULL.
func dayString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(types.DateLayout)
}
