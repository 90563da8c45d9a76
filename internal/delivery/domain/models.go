package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DeliveryStatus string

const (
	DeliveryStatusScheduled DeliveryStatus = "SCHEDULED"
	DeliveryStatusShipped   DeliveryStatus = "SHIPPED"
	DeliveryStatusCanceled  DeliveryStatus = "CANCELED"
)

type Delivery struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	SubscriptionID   snowflake.ID   `gorm:"not null;index" json:"subscription_id"`
	BillingEventID   snowflake.ID   `gorm:"not null;uniqueIndex:ux_deliveries_event_number" json:"billing_event_id"`
	DeliveryNumber   int            `gorm:"not null;uniqueIndex:ux_deliveries_event_number" json:"delivery_number"`
	ScheduledDate    time.Time      `gorm:"not null;index" json:"scheduled_date"`
	MealsPerDelivery int            `gorm:"not null" json:"meals_per_delivery"`
	Status           DeliveryStatus `gorm:"type:varchar(16);not null" json:"status"`
	TimeSlot         string         `gorm:"type:varchar(32)" json:"time_slot,omitempty"`
	ShippedAt        *time.Time     `json:"shipped_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Delivery) TableName() string {
	return "subscription_deliveries"
}
