package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListSubscriptionFilter struct {
	Status       SubscriptionStatus
	ReferralCode string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string, forUpdate bool) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListSubscriptionFilter, page pagination.Pagination) ([]*Subscription, error)
	MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, canceledAt time.Time) error

	InsertBillingEvent(ctx context.Context, db *gorm.DB, event *BillingEvent) error
	FindBillingEventByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*BillingEvent, error)
	ListReferralEvents(ctx context.Context, db *gorm.DB, code string) ([]ReferralEvent, error)
}
