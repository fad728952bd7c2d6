// Package db provides PostgreSQL storage for the article corpus, the run ledger and owner accounts.
package db

import (
	"context"
	_ "embed"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/news-ingest/internal/corpus"
)

//go:embed schema.sql
var schema string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool  *pgxpool.Pool
	sb    sq.StatementBuilderType
	locks corpus.KeyedMutex
}

var _ corpus.Backend = (*DB)(nil)

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schema
}
