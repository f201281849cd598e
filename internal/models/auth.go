package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest is the credential payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and account state.
type LoginResponse struct {
	AccessToken        string    `json:"access_token"`
	ExpiresIn          int64     `json:"expires_in"`
	IssuedAt           time.Time `json:"issued_at"`
	MustChangePassword bool      `json:"must_change_password"`
	Account            AccountInfo `json:"account"`
}

// AccountInfo is the public slice of an account returned on login.
type AccountInfo struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// ChangePasswordRequest carries a current/new password pair.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ForgotPasswordRequest starts the token-based reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the token-based reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// JWTClaims are the claims embedded in issued access tokens.
type JWTClaims struct {
	AccountID string   `json:"account_id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
