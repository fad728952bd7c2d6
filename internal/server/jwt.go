package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/server/middleware"
)

// ErrInvalidToken wraps every reason a bearer token is refused.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify an owner; the subject is the owner ID.
type Claims struct {
	jwt.RegisteredClaims
}

func (c *Claims) GetOwnerID() string {
	return c.Subject
}

// JWTService issues HS256 owner tokens and checks them for the auth middleware.
type JWTService struct {
	config *config.JWTConfig
	now    func() time.Time
}

var _ middleware.TokenValidator = (*JWTService)(nil)

func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{config: cfg, now: time.Now}
}

// Issue signs a token for ownerID and returns it with its expiry.
func (s *JWTService) Issue(ownerID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.config.TTL).Truncate(time.Second)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   ownerID,
		Issuer:    s.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse checks signature, algorithm, issuer and lifetime and returns the claims.
func (s *JWTService) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(s.config.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateToken implements middleware.TokenValidator.
func (s *JWTService) ValidateToken(token string) (middleware.OwnerIDGetter, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
