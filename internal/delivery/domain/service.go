package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ScheduleRequest struct {
	SubscriptionID snowflake.ID
	BillingEventID snowflake.ID
	PlanID         string
	AnchorDate     time.Time
	TimeSlot       string
}

type ListUpcomingRequest struct {
	From   *time.Time
	To     *time.Time
	Status string
}

type PreviewRequest struct {
	Kind   string
	PlanID string
	Date   string
}

type PreviewResponse struct {
	Kind     ScheduleKind       `json:"kind"`
	PlanID   string             `json:"plan_id"`
	PlanName string             `json:"plan_name"`
	Schedule []DeliverySchedule `json:"schedule"`
}

// Service owns delivery rows. Schedule and cancel calls take the caller's transaction so
// they commit together with the billing event that triggered them; a nil tx uses the default DB.
type Service interface {
	ScheduleInitial(ctx context.Context, tx *gorm.DB, req ScheduleRequest) ([]Delivery, error)
	ScheduleRenewal(ctx context.Context, tx *gorm.DB, req ScheduleRequest) ([]Delivery, error)
	CancelPending(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, from time.Time) (int64, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]Delivery, error)
	ListUpcoming(ctx context.Context, req ListUpcomingRequest) ([]Delivery, error)
	MarkShipped(ctx context.Context, id string) (Delivery, error)
	Preview(ctx context.Context, req PreviewRequest) (PreviewResponse, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidKind      = errors.New("invalid_schedule_kind")
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrNotFound         = errors.New("not_found")
	ErrNotScheduled     = errors.New("delivery_not_scheduled")
)
