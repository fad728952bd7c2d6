package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/types"
)

// SaveRun records an ingestion run summary, replacing any earlier snapshot of the same run
func (db *DB) SaveRun(ctx context.Context, run *types.IngestionRun) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (id, owner_id, company, state, started_at, finished_at, summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET state = $4, finished_at = $6, summary = $7`,
		run.ID, run.Criteria.OwnerID, run.Criteria.Company, string(run.State),
		run.StartedAt, run.FinishedAt, summary,
	)
	if err != nil {
		return &corpus.Error{Op: "save run", Cause: err}
	}
	return nil
}

// GetRun retrieves a run summary owned by ownerID
func (db *DB) GetRun(ctx context.Context, ownerID, runID string) (*types.IngestionRun, error) {
	var summary []byte
	err := db.pool.QueryRow(ctx,
		`SELECT summary FROM ingestion_runs WHERE id = $1 AND owner_id = $2`,
		runID, ownerID,
	).Scan(&summary)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, corpus.ErrNotFound
		}
		return nil, &corpus.Error{Op: "get run", Cause: err}
	}
	return corpus.DecodeRun(summary)
}

// ListRuns lists an owner's runs, newest first
func (db *DB) ListRuns(ctx context.Context, ownerID string, limit int) ([]types.IngestionRun, error) {
	if limit <= 0 {
		limit = corpus.DefaultRunListLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT summary FROM ingestion_runs WHERE owner_id = $1 ORDER BY started_at DESC LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, &corpus.Error{Op: "list runs", Cause: err}
	}
	defer rows.Close()

	var runs []types.IngestionRun
	for rows.Next() {
		var summary []byte
		if err := rows.Scan(&summary); err != nil {
			return nil, &corpus.Error{Op: "list runs", Cause: err}
		}
		run, err := corpus.DecodeRun(summary)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
