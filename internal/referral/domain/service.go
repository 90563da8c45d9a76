package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
)

type CreateReferrerRequest struct {
	Code  string `json:"code" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Note  string `json:"note"`
}

type UpdateReferrerRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email" binding:"omitempty,email"`
	Note   *string `json:"note"`
	Active *bool   `json:"active"`
}

type ListReferrerRequest struct {
	Active    *bool
	PageToken string
	PageSize  int32
}

type ListReferrerResponse struct {
	pagination.PageInfo
	Referrers []Referrer `json:"referrers"`
}

type Service interface {
	Create(ctx context.Context, req CreateReferrerRequest) (Referrer, error)
	List(ctx context.Context, req ListReferrerRequest) (ListReferrerResponse, error)
	GetByCode(ctx context.Context, code string) (Referrer, error)
	Update(ctx context.Context, code string, req UpdateReferrerRequest) (Referrer, error)
	Delete(ctx context.Context, code string) error
}

// StatsService computes commission rollups. An empty code means every referrer.
type StatsService interface {
	Stats(ctx context.Context, code string) ([]ReferrerStats, error)
}

// UsageSource supplies the raw referred purchases. Implementations may be called concurrently.
type UsageSource interface {
	ReferredOrders(ctx context.Context, code string) ([]ReferredOrder, error)
	SubscriptionEvents(ctx context.Context, code string) ([]SubscriptionEvent, error)
}

var (
	ErrInvalidCode    = errors.New("invalid_referral_code")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrDuplicateCode  = errors.New("referral_code_exists")
	ErrNotFound       = errors.New("not_found")
	ErrNothingToApply = errors.New("nothing_to_update")
)
