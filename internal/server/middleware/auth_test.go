package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator is a test implementation of TokenValidator for unit tests.
type testTokenValidator struct {
	validTokens map[string]string
}

func newTestTokenValidator() *testTokenValidator {
	return &testTokenValidator{validTokens: make(map[string]string)}
}

func (v *testTokenValidator) ValidateToken(tokenString string) (OwnerIDGetter, error) {
	ownerID, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(ownerID), nil
}

type testClaims string

func (c testClaims) GetOwnerID() string {
	return string(c)
}

// echoOwner responds with the owner ID found in the context.
func echoOwner(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := GetOwnerID(r)
		require.NoError(t, err)
		_, _ = w.Write([]byte(ownerID))
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	validator := newTestTokenValidator()
	validator.validTokens["good-token"] = "analyst"

	handler := AuthMiddleware(validator)(echoOwner(t))

	for _, header := range []string{"Bearer good-token", "bearer good-token", "BEARER   good-token"} {
		req := httptest.NewRequest(http.MethodGet, "/corpus", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, header)
		assert.Equal(t, "analyst", rec.Body.String(), header)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	validator := newTestTokenValidator()
	validator.validTokens["good-token"] = "analyst"
	validator.validTokens["anonymous"] = ""

	called := false
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good-token"},
		{"no token", "Bearer"},
		{"extra parts", "Bearer good-token extra"},
		{"unknown token", "Bearer bad-token"},
		{"empty owner", "Bearer anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/corpus", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
	assert.False(t, called)
}

func TestGetOwnerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetOwnerID(req)
	assert.Error(t, err)

	req = req.WithContext(WithOwnerID(context.Background(), "analyst"))
	ownerID, err := GetOwnerID(req)
	require.NoError(t, err)
	assert.Equal(t, "analyst", ownerID)
}
