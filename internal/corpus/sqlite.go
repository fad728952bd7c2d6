package corpus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jonathan/news-ingest/internal/types"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var articleColumns = []string{
	"owner_id", "url", "title", "body_text", "published_at",
	"source", "author", "company", "suitability", "ingested_at",
}

// SQLiteStore is a Backend stored in a single SQLite file.
type SQLiteStore struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	locks KeyedMutex
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the schema. It is safe to run repeatedly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *types.ArticleRecord) error {
	if err := CheckRecord(rec); err != nil {
		return err
	}
	unlock := s.locks.Lock(rec.Key())
	defer unlock()

	ingested := rec.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now()
	}

	query, args, err := s.sb.Insert("articles").
		Columns(articleColumns...).
		Values(rec.OwnerID, rec.URL, rec.Title, rec.BodyText, dayString(rec.PublishedAt),
			rec.Source, rec.Author, rec.Company, string(rec.Suitability), ingested.UTC().Format(timeLayout)).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return &Error{Op: "upsert", Cause: err}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &Error{Op: "upsert", Cause: err}
	}
	return nil
}

// upsertSuffix is shared with the Postgres store; both dialects accept it.
const upsertSuffix = `ON CONFLICT (owner_id, url) DO UPDATE SET
	title = excluded.title,
	body_text = excluded.body_text,
	published_at = excluded.published_at,
	source = excluded.source,
	author = excluded.author,
	company = excluded.company,
	suitability = excluded.suitability,
	ingested_at = excluded.ingested_at`

// UpsertSuffix returns the conflict clause used for article upserts.
func UpsertSuffix() string {
	return upsertSuffix
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, ownerID, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM articles WHERE owner_id = ? AND url = ? LIMIT 1", ownerID, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: "exists", Cause: err}
	}
	return true, nil
}

// ListQuery builds the corpus listing statement for either dialect. dateArg converts
// the range bounds to the driver's representation of a stored date.
func ListQuery(sb sq.StatementBuilderType, dateArg func(*time.Time) any, ownerID string, q Query) sq.SelectBuilder {
	sel := sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("published_at IS NULL", "published_at", "url")

	if !q.IncludeRejected {
		sel = sel.Where(sq.Eq{"suitability": string(types.SuitabilityAccepted)})
	}
	if q.Company != "" {
		sel = sel.Where(sq.Expr("LOWER(company) = LOWER(?)", q.Company))
	}
	if q.From != nil {
		sel = sel.Where(sq.GtOrEq{"published_at": dateArg(q.From)})
	}
	if q.To != nil {
		sel = sel.Where(sq.LtOrEq{"published_at": dateArg(q.To)})
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	return sel
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, ownerID string, q Query) ([]types.ArticleRecord, error) {
	query, args, err := ListQuery(s.sb, dayString, ownerID, q).ToSql()
	if err != nil {
		return nil, &Error{Op: "list", Cause: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var out []types.ArticleRecord
	for rows.Next() {
		var (
			rec         types.ArticleRecord
			published   sql.NullString
			suitability string
			ingested    string
		)
		if err := rows.Scan(&rec.OwnerID, &rec.URL, &rec.Title, &rec.BodyText, &published,
			&rec.Source, &rec.Author, &rec.Company, &suitability, &ingested); err != nil {
			return nil, &Error{Op: "list", Cause: err}
		}
		rec.Suitability = types.Suitability(suitability)
		if published.Valid {
			if t, err := time.Parse(types.DateLayout, published.String); err == nil {
				rec.PublishedAt = &t
			}
		}
		if t, err := time.Parse(timeLayout, ingested); err == nil {
			rec.IngestedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Cause: err}
	}
	return out, nil
}

// DeleteOwner implements Store.
func (s *SQLiteStore) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE owner_id = ?", ownerID)
	if err != nil {
		return 0, &Error{Op: "delete owner", Cause: err}
	}
	return res.RowsAffected()
}

// SaveRun implements RunLedger.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *types.IngestionRun) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, owner_id, state, started_at, summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET state = excluded.state, summary = excluded.summary`,
		run.ID, run.Criteria.OwnerID, string(run.State), run.StartedAt.UTC().Format(timeLayout), string(summary))
	if err != nil {
		return &Error{Op: "save run", Cause: err}
	}
	return nil
}

// GetRun implements RunLedger.
func (s *SQLiteStore) GetRun(ctx context.Context, ownerID, runID string) (*types.IngestionRun, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		"SELECT summary FROM ingestion_runs WHERE id = ? AND owner_id = ?", runID, ownerID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get run", Cause: err}
	}
	return DecodeRun([]byte(summary))
}

// ListRuns implements RunLedger.
func (s *SQLiteStore) ListRuns(ctx context.Context, ownerID string, limit int) ([]types.IngestionRun, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT summary FROM ingestion_runs WHERE owner_id = ? ORDER BY started_at DESC LIMIT ?",
		ownerID, runLimit(limit))
	if err != nil {
		return nil, &Error{Op: "list runs", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var out []types.IngestionRun
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, &Error{Op: "list runs", Cause: err}
		}
		run, err := DecodeRun([]byte(summary))
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// CreateOwner implements OwnerStore.
func (s *SQLiteStore) CreateOwner(ctx context.Context, username, passwordHash string) (*OwnerAccount, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO owners (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, now.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrOwnerExists
		}
		return nil, &Error{Op: "create owner", Cause: err}
	}
	return &OwnerAccount{Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetOwner implements OwnerStore.
func (s *SQLiteStore) GetOwner(ctx context.Context, username string) (*OwnerAccount, error) {
	var (
		acct    OwnerAccount
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT username, password_hash, created_at FROM owners WHERE username = ?", username).
		Scan(&acct.Username, &acct.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get owner", Cause: err}
	}
	acct.CreatedAt, _ = time.Parse(timeLayout, created)
	return &acct, nil
}
