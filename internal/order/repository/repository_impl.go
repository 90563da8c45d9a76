package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db/option"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Where("checkout_session_id = ?", sessionID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, page pagination.Pagination) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.ReferralCode != "" {
		stmt = stmt.Where("referral_code = ?", filter.ReferralCode)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("id desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListReferred(ctx context.Context, db *gorm.DB, code string) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("status = ?", domain.OrderStatusPaid)
	if code != "" {
		stmt = stmt.Where("referral_code = ?", code)
	} else {
		stmt = stmt.Where("referral_code <> ''")
	}
	if err := stmt.Order("created_at asc, id asc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
