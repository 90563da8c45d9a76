package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
	ErrAuthDisabled       = errors.New("auth_disabled")
)

// RateLimitedError carries how long the client should wait before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return ErrTooManyAttempts }
