package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/news-ingest/internal/corpus"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// CreateOwner creates an owner account; a taken username yields corpus.ErrOwnerExists
func (db *DB) CreateOwner(ctx context.Context, username, passwordHash string) (*corpus.OwnerAccount, error) {
	acct := corpus.OwnerAccount{Username: username, PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO owners (username, password_hash) VALUES ($1, $2) RETURNING created_at`,
		username, passwordHash,
	).Scan(&acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, corpus.ErrOwnerExists
		}
		return nil, &corpus.Error{Op: "create owner", Cause: err}
	}
	return &acct, nil
}

// GetOwner retrieves an owner account by username
func (db *DB) GetOwner(ctx context.Context, username string) (*corpus.OwnerAccount, error) {
	var acct corpus.OwnerAccount
	err := db.pool.QueryRow(ctx,
		`SELECT username, password_hash, created_at FROM owners WHERE username = $1`,
		username,
	).Scan(&acct.Username, &acct.PasswordHash, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, corpus.ErrNotFound
		}
		return nil, &corpus.Error{Op: "get owner", Cause: err}
	}
	return &acct, nil
}

// DeleteOwnerAccount removes an owner account. Articles are left untouched.
func (db *DB) DeleteOwnerAccount(ctx context.Context, username string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM owners WHERE username = $1`, username)
	return err
}
