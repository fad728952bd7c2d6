// Package server provides the operator HTTP API for news ingestion.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/news-ingest/internal/corpus"
)

// ErrOwnerExists indicates the username is already registered
type ErrOwnerExists struct {
	Username string
}

func (e *ErrOwnerExists) Error() string {
	return fmt.Sprintf("owner already registered: %s", e.Username)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrRunNotFound indicates the run does not exist for the requesting owner
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// ErrRunFinished indicates a cancellation request for a run that already ended
type ErrRunFinished struct {
	RunID string
}

func (e *ErrRunFinished) Error() string {
	return fmt.Sprintf("run already finished: %s", e.RunID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		ownerExists *ErrOwnerExists
		badCreds    *ErrInvalidCredentials
		notFound    *ErrRunNotFound
		finished    *ErrRunFinished
		validation  *ErrValidation
	)
	switch {
	case errors.As(err, &ownerExists), errors.Is(err, corpus.ErrOwnerExists):
		return http.StatusConflict
	case errors.As(err, &badCreds):
		return http.StatusUnauthorized
	case errors.As(err, &notFound), errors.Is(err, corpus.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &finished):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
