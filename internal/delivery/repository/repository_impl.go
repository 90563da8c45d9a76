package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, deliveries []*domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&deliveries).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Delivery, error) {
	var delivery domain.Delivery
	err := db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]*domain.Delivery, error) {
	var deliveries []*domain.Delivery
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("scheduled_date asc, delivery_number asc").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, filter domain.UpcomingFilter) ([]*domain.Delivery, error) {
	var deliveries []*domain.Delivery
	stmt := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("scheduled_date >= ? AND scheduled_date < ?", filter.From, filter.To)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	err := stmt.Order("scheduled_date asc, time_slot asc, id asc").Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repo) MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, shippedAt time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("id = ? AND status = ?", id, domain.DeliveryStatusScheduled).
		Updates(map[string]any{
			"status":     domain.DeliveryStatusShipped,
			"shipped_at": shippedAt,
			"updated_at": shippedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) CancelScheduledFrom(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, from time.Time, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("subscription_id = ? AND status = ? AND scheduled_date >= ?", subscriptionID, domain.DeliveryStatusScheduled, from).
		Updates(map[string]any{
			"status":     domain.DeliveryStatusCanceled,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
