package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
)

// CheckoutOrderRequest carries a completed one-time checkout session.
type CheckoutOrderRequest struct {
	CheckoutSessionID string
	CustomerEmail     string
	CustomerName      string
	MenuSet           string
	PlanID            string
	Quantity          int
	AmountTotal       int64
	Currency          string
	ReferralCode      string
	Metadata          map[string]any
}

type ListOrderRequest struct {
	ReferralCode string
	PageToken    string
	PageSize     int32
}

type ListOrderResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type Service interface {
	// CreateFromCheckout is idempotent on the checkout session id; a replay returns the stored order.
	CreateFromCheckout(ctx context.Context, req CheckoutOrderRequest) (Order, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	ListReferred(ctx context.Context, code string) ([]Order, error)
}

var (
	ErrInvalidSession  = errors.New("invalid_checkout_session")
	ErrInvalidEmail    = errors.New("invalid_customer_email")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidQuantity = errors.New("invalid_quantity")
)
