package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the dedup ledger of received provider webhooks.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:varchar(64);not null"`
	Outcome         string         `json:"outcome" gorm:"type:varchar(32)"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeOrderPaid            = "order_paid"
	EventTypeSubscriptionCreated  = "subscription_created"
	EventTypeSubscriptionRenewed  = "subscription_renewed"
	EventTypeSubscriptionCanceled = "subscription_canceled"
)

const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// CheckoutMetadata is what the storefront attaches to a checkout session.
type CheckoutMetadata struct {
	PlanID                string
	MenuSet               string
	ReferralCode          string
	PreferredDeliveryDate string
	DeliveryTimeSlot      string
	Quantity              int
}

type CheckoutCompleted struct {
	SessionID              string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderInvoiceID      string
	CustomerEmail          string
	CustomerName           string
	AmountTotal            int64
	Currency               string
	Metadata               CheckoutMetadata
	RawMetadata            map[string]any
}

type InvoicePaid struct {
	ProviderInvoiceID      string
	ProviderSubscriptionID string
	AmountPaid             int64
	PaidAt                 time.Time
}

type SubscriptionDeleted struct {
	ProviderSubscriptionID string
	CanceledAt             time.Time
}

// PaymentEvent is the canonical event parsed by adapters. Exactly one payload pointer is set.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	RawPayload      []byte

	Checkout     *CheckoutCompleted
	Invoice      *InvoicePaid
	Cancellation *SubscriptionDeleted
}
