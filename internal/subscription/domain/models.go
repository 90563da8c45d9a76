// Package domain contains persistence models for subscriptions and their billing events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

type BillingEventKind string

const (
	BillingEventKindInitial BillingEventKind = "INITIAL"
	BillingEventKindRenewal BillingEventKind = "RENEWAL"
)

// Subscription is a recurring meal-set contract created from a subscription checkout.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey" json:"id"`
	ProviderSubscriptionID string             `gorm:"type:varchar(255);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"type:varchar(255)" json:"provider_customer_id,omitempty"`
	CheckoutSessionID      string             `gorm:"type:varchar(255)" json:"checkout_session_id,omitempty"`
	CustomerEmail          string             `gorm:"not null" json:"customer_email"`
	CustomerName           string             `json:"customer_name,omitempty"`
	PlanID                 string             `gorm:"type:varchar(64);not null" json:"plan_id"`
	MenuSet                string             `json:"menu_set"`
	Status                 SubscriptionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ReferralCode           string             `gorm:"type:varchar(16);index" json:"referral_code,omitempty"`
	StartedAt              time.Time          `gorm:"not null" json:"started_at"`
	PreferredDeliveryDate  time.Time          `gorm:"not null" json:"preferred_delivery_date"`
	DeliveryTimeSlot       string             `json:"delivery_time_slot,omitempty"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	Metadata               datatypes.JSONMap  `json:"metadata,omitempty"`
	CreatedAt              time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// BillingEvent is one paid period of a subscription. The initial contract and every renewal
// invoice produce exactly one event, and each event anchors one batch of deliveries.
type BillingEvent struct {
	ID                snowflake.ID     `gorm:"primaryKey" json:"id"`
	SubscriptionID    snowflake.ID     `gorm:"not null;index" json:"subscription_id"`
	ProviderInvoiceID *string          `gorm:"type:varchar(255);uniqueIndex" json:"provider_invoice_id,omitempty"`
	Kind              BillingEventKind `gorm:"type:varchar(16);not null" json:"kind"`
	BillingDate       time.Time        `gorm:"not null" json:"billing_date"`
	Amount            int64            `gorm:"not null" json:"amount"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
}

func (BillingEvent) TableName() string { return "subscription_billing_events" }

// ReferralEvent is a billing event joined with the referral attributes of its subscription.
type ReferralEvent struct {
	SubscriptionID snowflake.ID
	ReferralCode   string
	PlanID         string
	MenuSet        string
	Kind           BillingEventKind
	BillingDate    time.Time
}
