package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/news-ingest/internal/types"
)

// maxRequestBody bounds every JSON body the API accepts.
const maxRequestBody = 1 << 20

// AuthHandler serves /auth/register and /auth/login. Both answer with a bearer token.
type AuthHandler struct {
	owners     *OwnerService
	jwtService *JWTService
}

func NewAuthHandler(owners *OwnerService, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{owners: owners, jwtService: jwtService}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterOwnerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	owner, err := h.owners.Register(r.Context(), &req)
	if err != nil {
		writeError(w, HTTPStatus(err), err.Error())
		return
	}
	h.issueToken(w, http.StatusCreated, owner.Username)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	owner, err := h.owners.Login(r.Context(), &req)
	if err != nil {
		writeError(w, HTTPStatus(err), err.Error())
		return
	}
	h.issueToken(w, http.StatusOK, owner.Username)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, status int, ownerID string) {
	token, expiresAt, err := h.jwtService.Issue(ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, status, types.LoginResponse{OwnerID: ownerID, Token: token, ExpiresAt: expiresAt})
}

// readJSON decodes a bounded request body into dst and writes a 400 or 413 on failure.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	return false
}

// extractValidationErrors reports the first failed field constraint.
func extractValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("validation error: %s - %s", verrs[0].Field(), verrs[0].Tag())
	}
	return "validation error: invalid request"
}
