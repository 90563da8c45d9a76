package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db/option"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string, forUpdate bool) (*domain.Subscription, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(stmt.Where("provider_subscription_id = ?", providerSubscriptionID))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListSubscriptionFilter, page pagination.Pagination) ([]*domain.Subscription, error) {
	var subscriptions []*domain.Subscription
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ReferralCode != "" {
		stmt = stmt.Where("referral_code = ?", filter.ReferralCode)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("id desc").Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, canceledAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.SubscriptionStatusCanceled,
			"canceled_at": canceledAt,
			"updated_at":  canceledAt,
		}).Error
}

func (r *repo) InsertBillingEvent(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindBillingEventByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	err := db.WithContext(ctx).Where("provider_invoice_id = ?", invoiceID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) ListReferralEvents(ctx context.Context, db *gorm.DB, code string) ([]domain.ReferralEvent, error) {
	var rows []domain.ReferralEvent
	stmt := db.WithContext(ctx).
		Table("subscription_billing_events AS e").
		Select("e.subscription_id, s.referral_code, s.plan_id, s.menu_set, e.kind, e.billing_date").
		Joins("JOIN subscriptions AS s ON s.id = e.subscription_id")
	if code != "" {
		stmt = stmt.Where("s.referral_code = ?", code)
	} else {
		stmt = stmt.Where("s.referral_code <> ''")
	}
	if err := stmt.Order("e.billing_date asc, e.id asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func first(stmt *gorm.DB) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := stmt.First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}
