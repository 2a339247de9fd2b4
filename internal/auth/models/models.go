package models

import (
	"strings"
	"time"

	"repairhub/internal/sanitize"
	"repairhub/internal/validation"
)

const maxPasswordLength = 72

// Operator is a configured back-office account allowed on the admin surface.
type Operator struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// Validate reports every malformed field. Password strength is not checked
// here; operators authenticate with an existing credential.
func (r *LoginRequest) Validate() validation.FieldErrors {
	problems := validation.FieldErrors{}
	if r.Email == "" {
		problems.Add("email", "is required")
	} else {
		problems.Check(validation.Email(r.Email), "email", "must be a valid email address")
		problems.Check(!sanitize.CheckMalicious(r.Email), "email", "contains disallowed content")
	}
	if r.Password == "" {
		problems.Add("password", "is required")
	}
	problems.Check(len(r.Password) <= maxPasswordLength, "password", "must be at most 72 bytes")
	return problems
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}
