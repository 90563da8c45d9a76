// Package domain contains the operator session types for the back office.
package domain

import (
	"context"
	"time"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
}

type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
}

type LoginResult struct {
	Session   Session
	RawToken  string
	ExpiresAt time.Time
}

// Session is the decoded view of a signed session token.
type Session struct {
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
