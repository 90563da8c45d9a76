package domain

import (
	"fmt"
	"time"

	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
)

// MealsPerDelivery is stamped on every generated delivery. It is kept apart from
// PlanConfig.MealsPerDelivery on purpose; the two happen to agree today.
const MealsPerDelivery = 12

type ScheduleKind string

const (
	ScheduleKindInitial ScheduleKind = "INITIAL"
	ScheduleKindRenewal ScheduleKind = "RENEWAL"
)

type DeliverySchedule struct {
	DeliveryNumber   int       `json:"delivery_number"`
	ScheduledDate    time.Time `json:"scheduled_date"`
	MealsPerDelivery int       `json:"meals_per_delivery"`
}

// Day offsets keyed by deliveries per month. Renewals never ship on the billing date.
var (
	initialOffsets = map[int][]int{
		1: {0},
		2: {0, 14},
		4: {0, 7, 14, 21},
	}
	renewalOffsets = map[int][]int{
		1: {7},
		2: {7, 14},
		4: {7, 14, 21, 28},
	}
)

// CalculateInitialDeliverySchedule expands a new subscription into deliveries starting on the preferred date.
func CalculateInitialDeliverySchedule(planID string, preferredDeliveryDate time.Time) ([]DeliverySchedule, error) {
	return buildSchedule(planID, preferredDeliveryDate, initialOffsets)
}

// CalculateMonthlyDeliverySchedule expands a renewal billing into deliveries starting one week after billing.
func CalculateMonthlyDeliverySchedule(planID string, billingDate time.Time) ([]DeliverySchedule, error) {
	return buildSchedule(planID, billingDate, renewalOffsets)
}

// Calculate dispatches on kind.
func Calculate(kind ScheduleKind, planID string, anchor time.Time) ([]DeliverySchedule, error) {
	switch kind {
	case ScheduleKindInitial:
		return CalculateInitialDeliverySchedule(planID, anchor)
	case ScheduleKindRenewal:
		return CalculateMonthlyDeliverySchedule(planID, anchor)
	default:
		return nil, ErrInvalidKind
	}
}

func buildSchedule(planID string, anchor time.Time, offsetsByCadence map[int][]int) ([]DeliverySchedule, error) {
	plan, err := plandomain.GetPlanConfig(planID)
	if err != nil {
		return nil, err
	}
	offsets, ok := offsetsByCadence[plan.DeliveriesPerMonth]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported cadence %d for %q", plandomain.ErrInvalidPlan, plan.DeliveriesPerMonth, planID)
	}

	start := CalendarDate(anchor)
	schedule := make([]DeliverySchedule, 0, len(offsets))
	for i, offset := range offsets {
		schedule = append(schedule, DeliverySchedule{
			DeliveryNumber:   i + 1,
			ScheduledDate:    start.AddDate(0, 0, offset),
			MealsPerDelivery: MealsPerDelivery,
		})
	}
	return schedule, nil
}

// CalendarDate drops the time of day and zone, keeping the wall-clock date as UTC midnight.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
