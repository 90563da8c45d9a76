package domain

import (
	"context"
	"errors"
	"net/http"
)

// PaymentAdapter verifies and decodes one provider's webhooks.
type PaymentAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse returns ErrEventIgnored for event types the storefront does not act on.
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type IngestResult struct {
	EventID   string
	EventType string
	Outcome   string
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
)
