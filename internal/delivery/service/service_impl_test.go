package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"github.com/smallbiznis/futorumeshi/internal/delivery/repository"
	"github.com/smallbiznis/futorumeshi/internal/delivery/service"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:delivery_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.Delivery{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, time.May, 10, 3, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		Clock:      fake,
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
	})
	return fixture{db: db, node: node, clock: fake, svc: svc}
}

func TestScheduleInitialPersistsRows(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	subscriptionID := f.node.Generate()
	rows, err := f.svc.ScheduleInitial(ctx, nil, domain.ScheduleRequest{
		SubscriptionID: subscriptionID,
		BillingEventID: f.node.Generate(),
		PlanID:         plandomain.PlanMonthly48,
		AnchorDate:     time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC),
		TimeSlot:       "午前中",
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(rows))
	}

	stored, err := f.svc.ListBySubscription(ctx, subscriptionID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored deliveries, got %d", len(stored))
	}
	for i, d := range stored {
		if d.DeliveryNumber != i+1 {
			t.Fatalf("expected delivery number %d, got %d", i+1, d.DeliveryNumber)
		}
		if d.Status != domain.DeliveryStatusScheduled {
			t.Fatalf("expected SCHEDULED, got %s", d.Status)
		}
		if d.TimeSlot != "午前中" {
			t.Fatalf("expected time slot to be stored, got %q", d.TimeSlot)
		}
	}
	if got := stored[3].ScheduledDate.UTC().Format(time.DateOnly); got != "2024-06-05" {
		t.Fatalf("expected last delivery on 2024-06-05, got %s", got)
	}
}

func TestScheduleRejectsUnknownPlanWithoutWriting(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	subscriptionID := f.node.Generate()
	_, err := f.svc.ScheduleRenewal(ctx, nil, domain.ScheduleRequest{
		SubscriptionID: subscriptionID,
		BillingEventID: f.node.Generate(),
		PlanID:         "not-a-real-plan",
		AnchorDate:     f.clock.Now(),
	})
	if !errors.Is(err, plandomain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}

	var count int64
	f.db.Model(&domain.Delivery{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}

func TestScheduleSameBillingEventTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	req := domain.ScheduleRequest{
		SubscriptionID: f.node.Generate(),
		BillingEventID: f.node.Generate(),
		PlanID:         plandomain.PlanMonthly12,
		AnchorDate:     f.clock.Now(),
	}
	if _, err := f.svc.ScheduleRenewal(ctx, nil, req); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if _, err := f.svc.ScheduleRenewal(ctx, nil, req); err == nil {
		t.Fatalf("expected unique violation on second schedule")
	}
}

func TestCancelPendingOnlyTouchesFutureScheduled(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	subscriptionID := f.node.Generate()
	rows, err := f.svc.ScheduleInitial(ctx, nil, domain.ScheduleRequest{
		SubscriptionID: subscriptionID,
		BillingEventID: f.node.Generate(),
		PlanID:         plandomain.PlanMonthly48,
		AnchorDate:     time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := f.svc.MarkShipped(ctx, rows[0].ID.String()); err != nil {
		t.Fatalf("ship: %v", err)
	}

	// 05-01 shipped, 05-08 in the past, 05-15 and 05-22 pending
	canceled, err := f.svc.CancelPending(ctx, nil, subscriptionID, time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled != 2 {
		t.Fatalf("expected 2 canceled, got %d", canceled)
	}

	stored, err := f.svc.ListBySubscription(ctx, subscriptionID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.DeliveryStatus{
		domain.DeliveryStatusShipped,
		domain.DeliveryStatusScheduled,
		domain.DeliveryStatusCanceled,
		domain.DeliveryStatusCanceled,
	}
	for i, d := range stored {
		if d.Status != want[i] {
			t.Fatalf("delivery %d: expected %s, got %s", i+1, want[i], d.Status)
		}
	}
}

func TestMarkShippedTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	rows, err := f.svc.ScheduleInitial(ctx, nil, domain.ScheduleRequest{
		SubscriptionID: f.node.Generate(),
		BillingEventID: f.node.Generate(),
		PlanID:         plandomain.PlanMonthly12,
		AnchorDate:     f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	shipped, err := f.svc.MarkShipped(ctx, rows[0].ID.String())
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipped.ShippedAt == nil || shipped.Status != domain.DeliveryStatusShipped {
		t.Fatalf("expected shipped delivery, got %+v", shipped)
	}

	if _, err := f.svc.MarkShipped(ctx, rows[0].ID.String()); !errors.Is(err, domain.ErrNotScheduled) {
		t.Fatalf("expected ErrNotScheduled, got %v", err)
	}
	if _, err := f.svc.MarkShipped(ctx, f.node.Generate().String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.MarkShipped(ctx, "abc"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestListUpcomingDefaultsToNextWeek(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// clock is 2024-05-10 12:00 JST
	if _, err := f.svc.ScheduleInitial(ctx, nil, domain.ScheduleRequest{
		SubscriptionID: f.node.Generate(),
		BillingEventID: f.node.Generate(),
		PlanID:         plandomain.PlanMonthly48,
		AnchorDate:     time.Date(2024, time.May, 9, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	upcoming, err := f.svc.ListUpcoming(ctx, domain.ListUpcomingRequest{})
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(upcoming) != 1 {
		t.Fatalf("expected only the 05-16 delivery, got %d", len(upcoming))
	}
	if got := upcoming[0].ScheduledDate.UTC().Format(time.DateOnly); got != "2024-05-16" {
		t.Fatalf("expected 2024-05-16, got %s", got)
	}

	from := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)
	if _, err := f.svc.ListUpcoming(ctx, domain.ListUpcomingRequest{From: &from, To: &to}); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := f.svc.ListUpcoming(ctx, domain.ListUpcomingRequest{Status: "LOST"}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := setup(t)

	resp, err := f.svc.Preview(context.Background(), domain.PreviewRequest{
		Kind:   "renewal",
		PlanID: " subscription-monthly-24 ",
		Date:   "2024-12-28",
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if resp.Kind != domain.ScheduleKindRenewal || len(resp.Schedule) != 2 {
		t.Fatalf("unexpected preview %+v", resp)
	}
	if got := resp.Schedule[0].ScheduledDate.Format(time.DateOnly); got != "2025-01-04" {
		t.Fatalf("expected 2025-01-04, got %s", got)
	}

	if _, err := f.svc.Preview(context.Background(), domain.PreviewRequest{PlanID: plandomain.PlanMonthly12, Date: "28/12/2024"}); !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := f.svc.Preview(context.Background(), domain.PreviewRequest{PlanID: "trial-6"}); !errors.Is(err, plandomain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}
