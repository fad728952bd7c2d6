package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/types"
)

// OwnerService handles owner registration and credential checks.
type OwnerService struct {
	store     corpus.OwnerStore
	passwords *config.PasswordConfig
	// dummyHash is checked when the owner does not exist, so unknown usernames
	// cost the same bcrypt work as wrong passwords.
	dummyHash string
}

// NewOwnerService creates a new OwnerService.
func NewOwnerService(store corpus.OwnerStore, passwords *config.PasswordConfig) *OwnerService {
	dummy, _ := passwords.HashPassword("no-such-owner")
	return &OwnerService{store: store, passwords: passwords, dummyHash: dummy}
}

// Register creates a new owner account.
func (s *OwnerService) Register(ctx context.Context, req *types.RegisterOwnerRequest) (*types.Owner, error) {
	username := strings.TrimSpace(req.Username)

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account, err := s.store.CreateOwner(ctx, username, hash)
	if err != nil {
		if errors.Is(err, corpus.ErrOwnerExists) {
			return nil, &ErrOwnerExists{Username: username}
		}
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}

	return &types.Owner{Username: account.Username, CreatedAt: account.CreatedAt}, nil
}

// Login verifies credentials and returns the owner.
func (s *OwnerService) Login(ctx context.Context, req *types.LoginRequest) (*types.Owner, error) {
	account, err := s.store.GetOwner(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			s.passwords.VerifyPassword(req.Password, s.dummyHash)
			return nil, &ErrInvalidCredentials{}
		}
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	if !s.passwords.VerifyPassword(req.Password, account.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}

	return &types.Owner{Username: account.Username, CreatedAt: account.CreatedAt}, nil
}
