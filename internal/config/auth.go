package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Operator API credential settings, read from the environment by the serve command.
const (
	DefaultJWTIssuer  = "news-ingest"
	DefaultJWTTTL     = 24 * time.Hour
	DefaultBcryptCost = 12

	minJWTSecret  = 16
	maxBcryptCost = 14
)

// JWTConfig signs and checks owner tokens.
type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// NewJWTConfig reads JWT_SECRET (required), JWT_TTL as a Go duration and JWT_ISSUER.
func NewJWTConfig() (*JWTConfig, error) {
	cfg := &JWTConfig{
		Secret: os.Getenv("JWT_SECRET"),
		TTL:    DefaultJWTTTL,
		Issuer: DefaultJWTIssuer,
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		cfg.TTL = ttl
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	switch {
	case cfg.Secret == "":
		return nil, errors.New("JWT_SECRET is required")
	case len(cfg.Secret) < minJWTSecret:
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecret)
	case cfg.TTL < time.Minute:
		return nil, fmt.Errorf("JWT_TTL must be at least 1m, got %s", cfg.TTL)
	}
	return cfg, nil
}

// PasswordConfig hashes owner passwords. Pepper is appended before hashing.
type PasswordConfig struct {
	BcryptCost int
	Pepper     string
}

// NewPasswordConfig reads BCRYPT_COST and PASSWORD_PEPPER.
func NewPasswordConfig() (*PasswordConfig, error) {
	cfg := &PasswordConfig{BcryptCost: DefaultBcryptCost, Pepper: os.Getenv("PASSWORD_PEPPER")}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
		}
		cfg.BcryptCost = cost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > maxBcryptCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, maxBcryptCost, cfg.BcryptCost)
	}
	return cfg, nil
}

// HashPassword returns the bcrypt hash of pw. Passwords longer than bcrypt's
// 72-byte input are refused rather than silently truncated.
func (c *PasswordConfig) HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether pw matches storedHash.
func (c *PasswordConfig) VerifyPassword(pw, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(pw+c.Pepper)) == nil
}
