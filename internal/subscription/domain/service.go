package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
)

// CheckoutSubscriptionRequest carries a completed subscription checkout session.
// PreferredDeliveryDate is the customer's YYYY-MM-DD choice; empty falls back to the lead-time date.
type CheckoutSubscriptionRequest struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderInvoiceID      string
	CheckoutSessionID      string
	CustomerEmail          string
	CustomerName           string
	PlanID                 string
	MenuSet                string
	ReferralCode           string
	PreferredDeliveryDate  string
	DeliveryTimeSlot       string
	BillingDate            time.Time
	AmountTotal            int64
	Metadata               map[string]any
}

type RenewalRequest struct {
	ProviderSubscriptionID string
	ProviderInvoiceID      string
	BillingDate            time.Time
	Amount                 int64
}

type ListSubscriptionRequest struct {
	Status       string
	ReferralCode string
	PageToken    string
	PageSize     int32
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	// CreateFromCheckout is idempotent on the provider subscription id.
	CreateFromCheckout(ctx context.Context, req CheckoutSubscriptionRequest) (Subscription, error)
	// RecordRenewal is idempotent on the provider invoice id.
	RecordRenewal(ctx context.Context, req RenewalRequest) (BillingEvent, error)
	Cancel(ctx context.Context, id string) (Subscription, error)
	CancelByProviderID(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	ListReferralEvents(ctx context.Context, code string) ([]ReferralEvent, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidProviderID = errors.New("invalid_provider_subscription_id")
	ErrInvalidInvoiceID  = errors.New("invalid_provider_invoice_id")
	ErrInvalidEmail      = errors.New("invalid_customer_email")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrNotFound          = errors.New("subscription_not_found")
	ErrNotActive         = errors.New("subscription_not_active")
)
