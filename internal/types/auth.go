package types

import "time"

// RegisterOwnerRequest creates a corpus owner. Passwords are capped at
// bcrypt's input size.
type RegisterOwnerRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64,excludesall=/ "`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Owner is a corpus owner. Its username is the owner_id that scopes articles and runs.
type Owner struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse carries a bearer token for the operator API.
type LoginResponse struct {
	OwnerID   string    `json:"owner_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *RegisterOwnerRequest) Validate() error {
	return validate.Struct(r)
}

func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}
