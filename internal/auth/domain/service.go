package domain

import (
	"context"
	"errors"
)

// RegisterRequest opens a subscriber account.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// Credentials is a login attempt.
type Credentials struct {
	Email    string
	Password string
}

// Service issues and verifies sessions. Login failures are reported with one
// opaque error regardless of whether the email or the password was wrong.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, creds Credentials) (*Principal, error)
	Logout(ctx context.Context, sessionToken string) error
	Verify(ctx context.Context, sessionToken string) (*Principal, error)
}

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("weak_password")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrSessionNotFound    = errors.New("session_not_found")
	ErrSessionExpired     = errors.New("session_expired")
)
