// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// ownerIDKey is the context key for storing the authenticated owner ID.
const ownerIDKey ContextKey = "ownerID"

// TokenValidator validates bearer tokens. It allows the middleware to work with
// any token service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (OwnerIDGetter, error)
}

// OwnerIDGetter extracts the owner ID from token claims.
type OwnerIDGetter interface {
	GetOwnerID() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the owner ID
// to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w)
				return
			}

			// "Bearer" is matched case-insensitively
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w)
				return
			}

			ownerID := claims.GetOwnerID()
			if ownerID == "" {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

// WithOwnerID returns a context carrying the authenticated owner ID.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// GetOwnerID extracts the authenticated owner ID from the request context.
func GetOwnerID(r *http.Request) (string, error) {
	ownerID, ok := r.Context().Value(ownerIDKey).(string)
	if !ok || ownerID == "" {
		return "", fmt.Errorf("owner ID not found in request context")
	}
	return ownerID, nil
}
