package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"github.com/smallbiznis/futorumeshi/internal/notify"
	obsmetrics "github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	"github.com/smallbiznis/futorumeshi/internal/scheduler/guard"
	"go.uber.org/zap"
)

const (
	digestLockKey = "futorumeshi:scheduler:delivery_digest"
	// A fresh process looks back this far, so a digest missed across a restart is sent once.
	digestLookback = 24 * time.Hour
)

// DeliveryDigestJob posts tomorrow's scheduled deliveries once per digest cron activation.
func (s *Scheduler) DeliveryDigestJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDeliveryDigest)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	cfg := s.storefront.Get()
	if !cfg.Notifications.Enabled {
		schedMetrics.IncBatchDeferred(JobDeliveryDigest, obsmetrics.SchedulerBatchDeferredReasonDisabled)
		return nil
	}
	schedule, err := guard.ParseSchedule(cfg.Notifications.DigestCron)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.digest.invalid_cron", err, zap.String("cron", cfg.Notifications.DigestCron))
		return err
	}

	now := s.clock.Now()
	loc := cfg.Delivery.Location()
	due, err := guard.EnsureDue(schedule, loc, s.lastDigestAt(now), now)
	if errors.Is(err, guard.ErrNotDue) {
		schedMetrics.IncBatchDeferred(JobDeliveryDigest, obsmetrics.SchedulerBatchDeferredReasonNotDue)
		return nil
	}

	// The lock is never released; it expires after LockTTL so replicas ticking later still skip.
	if s.locker != nil {
		_, acquired, err := s.locker.TryLock(ctx, digestLockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger(ctx).Warn("digest lock unavailable, sending without it", zap.Error(err))
		case !acquired:
			s.markDigest(now)
			schedMetrics.IncBatchDeferred(JobDeliveryDigest, obsmetrics.SchedulerBatchDeferredReasonLocked)
			return nil
		}
	}

	tomorrow := deliverydomain.CalendarDate(now.In(loc)).AddDate(0, 0, 1)
	dayAfter := tomorrow.AddDate(0, 0, 1)
	deliveries, err := s.deliveries.ListUpcoming(ctx, deliverydomain.ListUpcomingRequest{
		From:   &tomorrow,
		To:     &dayAfter,
		Status: string(deliverydomain.DeliveryStatusScheduled),
	})
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.digest.list_failed", err)
		return err
	}

	text := BuildDigestMessage(tomorrow, deliveries, cfg.Delivery.TimeSlots)
	if !s.notifier.Notify(ctx, notify.KindDigest, text) {
		err := fmt.Errorf("post digest: %w", obsmetrics.ErrNotificationFailed)
		s.logSchedulerError(ctx, run, "scheduler.digest.notify_failed", err)
		return err
	}

	s.markDigest(now)
	run.AddProcessed(len(deliveries))
	schedMetrics.AddBatchProcessed(JobDeliveryDigest, "deliveries", len(deliveries))
	s.logger(ctx).Info("delivery digest sent",
		zap.Time("activation", due),
		zap.String("date", tomorrow.Format(time.DateOnly)),
		zap.Int("deliveries", len(deliveries)),
	)
	return nil
}

func (s *Scheduler) lastDigestAt(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDigest.IsZero() {
		s.lastDigest = now.Add(-digestLookback)
	}
	return s.lastDigest
}

func (s *Scheduler) markDigest(at time.Time) {
	s.mu.Lock()
	s.lastDigest = at
	s.mu.Unlock()
}

// BuildDigestMessage summarises deliveries per time slot. Slots follow the configured
// order; labels not in the configuration are appended in first-seen order.
func BuildDigestMessage(date time.Time, deliveries []deliverydomain.Delivery, slots []string) string {
	label := date.Format(time.DateOnly)
	if len(deliveries) == 0 {
		return fmt.Sprintf("明日 %s の配送予定はありません", label)
	}

	counts := map[string]int{}
	order := append([]string(nil), slots...)
	meals := 0
	for _, d := range deliveries {
		slot := strings.TrimSpace(d.TimeSlot)
		if slot == "" {
			slot = "指定なし"
		}
		if _, seen := counts[slot]; !seen && !slices.Contains(order, slot) {
			order = append(order, slot)
		}
		counts[slot]++
		meals += d.MealsPerDelivery
	}

	var b strings.Builder
	fmt.Fprintf(&b, "明日 %s の配送予定: %d件 / %d食", label, len(deliveries), meals)
	for _, slot := range order {
		if counts[slot] == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n・%s: %d件", slot, counts[slot])
	}
	return b.String()
}
