package domain

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogPlans = []string{
	plandomain.PlanMonthly12,
	plandomain.PlanMonthly24,
	plandomain.PlanMonthly48,
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInitialScheduleStartsOnPreferredDate(t *testing.T) {
	anchor := date(2024, time.May, 15)
	for _, planID := range catalogPlans {
		schedule, err := CalculateInitialDeliverySchedule(planID, anchor)
		require.NoError(t, err, planID)
		require.NotEmpty(t, schedule)
		assert.Equal(t, anchor, schedule[0].ScheduledDate, planID)
	}
}

func TestMonthlyScheduleStartsOneWeekAfterBilling(t *testing.T) {
	anchor := date(2024, time.May, 15)
	for _, planID := range catalogPlans {
		schedule, err := CalculateMonthlyDeliverySchedule(planID, anchor)
		require.NoError(t, err, planID)
		require.NotEmpty(t, schedule)
		assert.Equal(t, anchor.AddDate(0, 0, 7), schedule[0].ScheduledDate, planID)
	}
}

func TestScheduleLengthMatchesCadence(t *testing.T) {
	anchor := date(2024, time.January, 31)
	for _, planID := range catalogPlans {
		plan, err := plandomain.GetPlanConfig(planID)
		require.NoError(t, err)

		initial, err := CalculateInitialDeliverySchedule(planID, anchor)
		require.NoError(t, err)
		monthly, err := CalculateMonthlyDeliverySchedule(planID, anchor)
		require.NoError(t, err)

		assert.Len(t, initial, plan.DeliveriesPerMonth, planID)
		assert.Len(t, monthly, plan.DeliveriesPerMonth, planID)
		for i, entry := range append(initial, monthly...) {
			assert.Equal(t, MealsPerDelivery, entry.MealsPerDelivery)
			assert.Equal(t, i%plan.DeliveriesPerMonth+1, entry.DeliveryNumber)
		}
	}
}

func TestWeeklyPlanSpacing(t *testing.T) {
	anchor := date(2024, time.December, 20)
	for _, calc := range []func(string, time.Time) ([]DeliverySchedule, error){
		CalculateInitialDeliverySchedule,
		CalculateMonthlyDeliverySchedule,
	} {
		schedule, err := calc(plandomain.PlanMonthly48, anchor)
		require.NoError(t, err)
		require.Len(t, schedule, 4)
		for i := 1; i < len(schedule); i++ {
			assert.Equal(t, 7*24*time.Hour, schedule[i].ScheduledDate.Sub(schedule[i-1].ScheduledDate))
		}
	}
}

func TestBiweeklyOffsets(t *testing.T) {
	anchor := date(2024, time.February, 20)

	initial, err := CalculateInitialDeliverySchedule(plandomain.PlanMonthly24, anchor)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.February, 20), date(2024, time.March, 5)}, scheduledDates(initial))

	monthly, err := CalculateMonthlyDeliverySchedule(plandomain.PlanMonthly24, anchor)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.February, 27), date(2024, time.March, 5)}, scheduledDates(monthly))
}

func TestScheduleRollsOverYearEnd(t *testing.T) {
	monthly, err := CalculateMonthlyDeliverySchedule(plandomain.PlanMonthly48, date(2024, time.December, 10))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2024, time.December, 17),
		date(2024, time.December, 24),
		date(2024, time.December, 31),
		date(2025, time.January, 7),
	}, scheduledDates(monthly))
}

func TestScheduleIgnoresTimeOfDayAndZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	lateEvening := time.Date(2024, time.March, 30, 23, 45, 0, 0, tokyo)

	schedule, err := CalculateInitialDeliverySchedule(plandomain.PlanMonthly12, lateEvening)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 30), schedule[0].ScheduledDate)

	// crossing a DST change in a zone that has one must still add whole days
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	beforeDST := time.Date(2024, time.March, 5, 0, 30, 0, 0, ny)
	monthly, err := CalculateMonthlyDeliverySchedule(plandomain.PlanMonthly48, beforeDST)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 12), monthly[0].ScheduledDate)
	assert.Equal(t, date(2024, time.April, 2), monthly[3].ScheduledDate)
}

func TestScheduleIsDeterministic(t *testing.T) {
	anchor := date(2024, time.May, 1)
	first, err := CalculateInitialDeliverySchedule(plandomain.PlanMonthly48, anchor)
	require.NoError(t, err)
	second, err := CalculateInitialDeliverySchedule(plandomain.PlanMonthly48, anchor)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUnknownPlanFailsWithoutEntries(t *testing.T) {
	anchor := date(2024, time.May, 1)

	initial, err := CalculateInitialDeliverySchedule("not-a-real-plan", anchor)
	assert.True(t, errors.Is(err, plandomain.ErrInvalidPlan))
	assert.Nil(t, initial)

	monthly, err := CalculateMonthlyDeliverySchedule("not-a-real-plan", anchor)
	assert.True(t, errors.Is(err, plandomain.ErrInvalidPlan))
	assert.Nil(t, monthly)
}

func TestCalculateDispatchesOnKind(t *testing.T) {
	anchor := date(2024, time.May, 1)

	initial, err := Calculate(ScheduleKindInitial, plandomain.PlanMonthly12, anchor)
	require.NoError(t, err)
	assert.Equal(t, anchor, initial[0].ScheduledDate)

	renewal, err := Calculate(ScheduleKindRenewal, plandomain.PlanMonthly12, anchor)
	require.NoError(t, err)
	assert.Equal(t, anchor.AddDate(0, 0, 7), renewal[0].ScheduledDate)

	_, err = Calculate("WEEKLY", plandomain.PlanMonthly12, anchor)
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func scheduledDates(schedule []DeliverySchedule) []time.Time {
	out := make([]time.Time, 0, len(schedule))
	for _, entry := range schedule {
		out = append(out, entry.ScheduledDate)
	}
	return out
}
