package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UpcomingFilter struct {
	From   time.Time
	To     time.Time
	Status DeliveryStatus
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, deliveries []*Delivery) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Delivery, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]*Delivery, error)
	ListBetween(ctx context.Context, db *gorm.DB, filter UpcomingFilter) ([]*Delivery, error)
	MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, shippedAt time.Time) (int64, error)
	CancelScheduledFrom(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, from time.Time, now time.Time) (int64, error)
}
