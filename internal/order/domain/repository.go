package domain

import (
	"context"

	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListOrderFilter struct {
	ReferralCode string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID string) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, page pagination.Pagination) ([]*Order, error)
	// ListReferred returns paid orders carrying a referral code, optionally a single one.
	ListReferred(ctx context.Context, db *gorm.DB, code string) ([]*Order, error)
}
