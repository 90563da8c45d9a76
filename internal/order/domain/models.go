package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order is a paid one-time checkout (trial sets and other non-subscription purchases).
type Order struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	CheckoutSessionID string            `gorm:"type:varchar(255);not null;uniqueIndex" json:"checkout_session_id"`
	CustomerEmail     string            `gorm:"not null" json:"customer_email"`
	CustomerName      string            `json:"customer_name,omitempty"`
	MenuSet           string            `json:"menu_set"`
	PlanID            string            `json:"plan_id,omitempty"`
	Quantity          int               `gorm:"not null" json:"quantity"`
	AmountTotal       int64             `gorm:"not null" json:"amount_total"`
	Currency          string            `gorm:"type:varchar(3);not null" json:"currency"`
	ReferralCode      string            `gorm:"type:varchar(16);index" json:"referral_code,omitempty"`
	Status            OrderStatus       `gorm:"type:varchar(16);not null" json:"status"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
