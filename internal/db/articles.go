package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/types"
)

// Upsert inserts or refreshes an article for its owner
func (db *DB) Upsert(ctx context.Context, rec *types.ArticleRecord) error {
	if err := corpus.CheckRecord(rec); err != nil {
		return err
	}
	unlock := db.locks.Lock(rec.Key())
	defer unlock()

	ingested := rec.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now()
	}

	query, args, err := db.sb.Insert("articles").
		Columns("owner_id", "url", "title", "body_text", "published_at",
			"source", "author", "company", "suitability", "ingested_at").
		Values(rec.OwnerID, rec.URL, rec.Title, rec.BodyText, publishedDate(rec.PublishedAt),
			rec.Source, rec.Author, rec.Company, string(rec.Suitability), ingested.UTC()).
		Suffix(corpus.UpsertSuffix()).
		ToSql()
	if err != nil {
		return &corpus.Error{Op: "upsert", Cause: err}
	}

	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return &corpus.Error{Op: "upsert", Cause: fmt.Errorf("failed to upsert article %s: %w", rec.URL, err)}
	}
	return nil
}

func publishedDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Exists reports whether the owner already has the URL in their corpus
func (db *DB) Exists(ctx context.Context, ownerID, url string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE owner_id = $1 AND url = $2)`,
		ownerID, url,
	).Scan(&exists)
	if err != nil {
		return false, &corpus.Error{Op: "exists", Cause: err}
	}
	return exists, nil
}

// List returns the owner's articles ordered by published date
func (db *DB) List(ctx context.Context, ownerID string, q corpus.Query) ([]types.ArticleRecord, error) {
	query, args, err := corpus.ListQuery(db.sb, publishedDate, ownerID, q).ToSql()
	if err != nil {
		return nil, &corpus.Error{Op: "list", Cause: err}
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &corpus.Error{Op: "list", Cause: err}
	}
	defer rows.Close()

	var out []types.ArticleRecord
	for rows.Next() {
		var (
			rec         types.ArticleRecord
			suitability string
		)
		if err := rows.Scan(&rec.OwnerID, &rec.URL, &rec.Title, &rec.BodyText, &rec.PublishedAt,
			&rec.Source, &rec.Author, &rec.Company, &suitability, &rec.IngestedAt); err != nil {
			return nil, &corpus.Error{Op: "list", Cause: err}
		}
		rec.Suitability = types.Suitability(suitability)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &corpus.Error{Op: "list", Cause: err}
	}
	return out, nil
}

// DeleteOwner removes every article owned by ownerID
func (db *DB) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM articles WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, &corpus.Error{Op: "delete owner", Cause: err}
	}
	return tag.RowsAffected(), nil
}

// CountArticles returns the number of stored articles for an owner, any verdict
func (db *DB) CountArticles(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}
