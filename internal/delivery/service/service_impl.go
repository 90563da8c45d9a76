package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultUpcomingWindow = 7 * 24 * time.Hour

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Storefront *config.StorefrontConfigHolder
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	storefront *config.StorefrontConfigHolder
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("delivery.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		storefront: p.Storefront,
		metrics:    p.Metrics,
	}
}

func (s *Service) ScheduleInitial(ctx context.Context, tx *gorm.DB, req domain.ScheduleRequest) ([]domain.Delivery, error) {
	return s.schedule(ctx, tx, domain.ScheduleKindInitial, req)
}

func (s *Service) ScheduleRenewal(ctx context.Context, tx *gorm.DB, req domain.ScheduleRequest) ([]domain.Delivery, error) {
	return s.schedule(ctx, tx, domain.ScheduleKindRenewal, req)
}

func (s *Service) schedule(ctx context.Context, tx *gorm.DB, kind domain.ScheduleKind, req domain.ScheduleRequest) ([]domain.Delivery, error) {
	if req.SubscriptionID == 0 || req.BillingEventID == 0 {
		return nil, domain.ErrInvalidID
	}
	if req.AnchorDate.IsZero() {
		return nil, domain.ErrInvalidDate
	}

	schedule, err := domain.Calculate(kind, req.PlanID, req.AnchorDate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]*domain.Delivery, 0, len(schedule))
	for _, entry := range schedule {
		rows = append(rows, &domain.Delivery{
			ID:               s.genID.Generate(),
			SubscriptionID:   req.SubscriptionID,
			BillingEventID:   req.BillingEventID,
			DeliveryNumber:   entry.DeliveryNumber,
			ScheduledDate:    entry.ScheduledDate,
			MealsPerDelivery: entry.MealsPerDelivery,
			Status:           domain.DeliveryStatusScheduled,
			TimeSlot:         strings.TrimSpace(req.TimeSlot),
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	if err := s.repo.InsertBatch(ctx, s.dbOrTx(tx), rows); err != nil {
		return nil, err
	}

	s.metrics.RecordDeliveriesScheduled(ctx, string(kind), len(rows))
	s.log.Info("deliveries scheduled",
		zap.String("kind", string(kind)),
		zap.String("subscription_id", req.SubscriptionID.String()),
		zap.String("plan_id", req.PlanID),
		zap.Int("count", len(rows)),
		zap.Time("first_date", schedule[0].ScheduledDate),
	)

	return derefAll(rows), nil
}

func (s *Service) CancelPending(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, from time.Time) (int64, error) {
	if subscriptionID == 0 {
		return 0, domain.ErrInvalidID
	}
	canceled, err := s.repo.CancelScheduledFrom(ctx, s.dbOrTx(tx), subscriptionID, domain.CalendarDate(from), s.clock.Now())
	if err != nil {
		return 0, err
	}
	if canceled > 0 {
		s.log.Info("pending deliveries canceled",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Int64("count", canceled),
		)
	}
	return canceled, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Delivery, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListBySubscription(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return derefAll(items), nil
}

// ListUpcoming defaults to the next seven days starting today in the storefront timezone.
func (s *Service) ListUpcoming(ctx context.Context, req domain.ListUpcomingRequest) ([]domain.Delivery, error) {
	today := domain.CalendarDate(s.clock.Now().In(s.storefront.Get().Delivery.Location()))

	from := today
	if req.From != nil {
		from = domain.CalendarDate(*req.From)
	}
	to := from.Add(defaultUpcomingWindow)
	if req.To != nil {
		to = domain.CalendarDate(*req.To)
	}
	if !to.After(from) {
		return nil, domain.ErrInvalidDateRange
	}

	status := domain.DeliveryStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case "", domain.DeliveryStatusScheduled, domain.DeliveryStatusShipped, domain.DeliveryStatusCanceled:
	default:
		return nil, domain.ErrInvalidStatus
	}

	items, err := s.repo.ListBetween(ctx, s.db, domain.UpcomingFilter{From: from, To: to, Status: status})
	if err != nil {
		return nil, err
	}
	return derefAll(items), nil
}

func (s *Service) MarkShipped(ctx context.Context, id string) (domain.Delivery, error) {
	deliveryID, err := parseID(id)
	if err != nil {
		return domain.Delivery{}, err
	}

	var shipped *domain.Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if existing.Status != domain.DeliveryStatusScheduled {
			return domain.ErrNotScheduled
		}

		now := s.clock.Now()
		updated, err := s.repo.MarkShipped(ctx, tx, deliveryID, now)
		if err != nil {
			return err
		}
		if updated == 0 {
			return domain.ErrNotScheduled
		}
		existing.Status = domain.DeliveryStatusShipped
		existing.ShippedAt = &now
		existing.UpdatedAt = now
		shipped = existing
		return nil
	})
	if err != nil {
		return domain.Delivery{}, err
	}

	s.log.Info("delivery shipped", zap.String("delivery_id", deliveryID.String()))
	return *shipped, nil
}

func (s *Service) Preview(ctx context.Context, req domain.PreviewRequest) (domain.PreviewResponse, error) {
	_ = ctx
	kind := domain.ScheduleKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = domain.ScheduleKindInitial
	}

	anchor := domain.CalendarDate(s.clock.Now())
	if value := strings.TrimSpace(req.Date); value != "" {
		parsed, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return domain.PreviewResponse{}, domain.ErrInvalidDate
		}
		anchor = parsed
	}

	planID := plandomain.NormalizePlanID(req.PlanID)
	schedule, err := domain.Calculate(kind, planID, anchor)
	if err != nil {
		return domain.PreviewResponse{}, err
	}

	return domain.PreviewResponse{
		Kind:     kind,
		PlanID:   planID,
		PlanName: plandomain.GetPlanName(planID),
		Schedule: schedule,
	}, nil
}

func (s *Service) dbOrTx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func derefAll(items []*domain.Delivery) []domain.Delivery {
	out := make([]domain.Delivery, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}
