package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"github.com/smallbiznis/futorumeshi/internal/notify"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	"github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Storefront *config.StorefrontConfigHolder
	Deliveries deliverydomain.Service
	Notifier   *notify.Notifier `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	storefront *config.StorefrontConfigHolder
	deliveries deliverydomain.Service
	notifier   *notify.Notifier
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		storefront: p.Storefront,
		deliveries: p.Deliveries,
		notifier:   p.Notifier,
	}
}

func (s *Service) CreateFromCheckout(ctx context.Context, req domain.CheckoutSubscriptionRequest) (domain.Subscription, error) {
	providerID := strings.TrimSpace(req.ProviderSubscriptionID)
	if providerID == "" {
		return domain.Subscription{}, domain.ErrInvalidProviderID
	}

	planID := plandomain.NormalizePlanID(req.PlanID)
	plan, err := plandomain.GetPlanConfig(planID)
	if err != nil {
		return domain.Subscription{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Subscription{}, domain.ErrInvalidEmail
	}

	existing, err := s.repo.FindByProviderID(ctx, s.db, providerID, false)
	if err != nil {
		return domain.Subscription{}, err
	}
	if existing != nil {
		s.log.Info("subscription already recorded", zap.String("provider_subscription_id", providerID))
		return *existing, nil
	}

	now := s.clock.Now()
	billingDate := req.BillingDate
	if billingDate.IsZero() {
		billingDate = now
	}

	storefront := s.storefront.Get()
	firstDelivery := s.firstDeliveryDate(req.PreferredDeliveryDate, billingDate, storefront.Delivery)
	timeSlot := storefront.Delivery.NormalizeTimeSlot(req.DeliveryTimeSlot)

	menuSet := strings.TrimSpace(req.MenuSet)
	if menuSet == "" {
		menuSet = plandomain.GetMenuSetName(planID)
	}

	subscription := domain.Subscription{
		ID:                     s.genID.Generate(),
		ProviderSubscriptionID: providerID,
		ProviderCustomerID:     strings.TrimSpace(req.ProviderCustomerID),
		CheckoutSessionID:      strings.TrimSpace(req.CheckoutSessionID),
		CustomerEmail:          email,
		CustomerName:           strings.TrimSpace(req.CustomerName),
		PlanID:                 planID,
		MenuSet:                menuSet,
		Status:                 domain.SubscriptionStatusActive,
		ReferralCode:           strings.ToUpper(strings.TrimSpace(req.ReferralCode)),
		StartedAt:              billingDate,
		PreferredDeliveryDate:  firstDelivery,
		DeliveryTimeSlot:       timeSlot,
		Metadata:               datatypes.JSONMap(req.Metadata),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	amount := req.AmountTotal
	if amount <= 0 {
		amount = int64(plan.MonthlyTotal)
	}
	event := domain.BillingEvent{
		ID:                s.genID.Generate(),
		SubscriptionID:    subscription.ID,
		ProviderInvoiceID: optionalString(req.ProviderInvoiceID),
		Kind:              domain.BillingEventKindInitial,
		BillingDate:       billingDate,
		Amount:            amount,
		CreatedAt:         now,
	}

	var deliveries []deliverydomain.Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}
		if err := s.repo.InsertBillingEvent(ctx, tx, &event); err != nil {
			return err
		}
		var err error
		deliveries, err = s.deliveries.ScheduleInitial(ctx, tx, deliverydomain.ScheduleRequest{
			SubscriptionID: subscription.ID,
			BillingEventID: event.ID,
			PlanID:         planID,
			AnchorDate:     firstDelivery,
			TimeSlot:       timeSlot,
		})
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// a concurrent delivery of the same webhook won the insert
			if stored, findErr := s.repo.FindByProviderID(ctx, s.db, providerID, false); findErr == nil && stored != nil {
				return *stored, nil
			}
		}
		return domain.Subscription{}, err
	}

	logger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("provider_subscription_id", providerID),
		zap.String("plan_id", planID),
		zap.String("referral_code", subscription.ReferralCode),
		zap.Int("deliveries", len(deliveries)),
	)

	s.notifier.Notify(ctx, notify.KindSubscription, subscriptionMessage(subscription, deliveries))
	return subscription, nil
}

// firstDeliveryDate uses the customer's date when it parses and is not before the billing day;
// otherwise the billing day in the storefront timezone plus the configured lead time.
func (s *Service) firstDeliveryDate(preferred string, billingDate time.Time, cfg config.DeliveryConfig) time.Time {
	billingDay := deliverydomain.CalendarDate(billingDate.In(cfg.Location()))
	fallback := billingDay.AddDate(0, 0, cfg.MinLeadDays)

	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		return fallback
	}
	parsed, err := time.Parse(time.DateOnly, preferred)
	if err != nil {
		s.log.Warn("unparsable preferred delivery date, using lead-time fallback",
			zap.String("preferred_delivery_date", preferred),
		)
		return fallback
	}
	if parsed.Before(billingDay) {
		s.log.Warn("preferred delivery date in the past, using lead-time fallback",
			zap.String("preferred_delivery_date", preferred),
		)
		return fallback
	}
	return parsed
}

func (s *Service) RecordRenewal(ctx context.Context, req domain.RenewalRequest) (domain.BillingEvent, error) {
	providerID := strings.TrimSpace(req.ProviderSubscriptionID)
	if providerID == "" {
		return domain.BillingEvent{}, domain.ErrInvalidProviderID
	}
	invoiceID := strings.TrimSpace(req.ProviderInvoiceID)
	if invoiceID == "" {
		return domain.BillingEvent{}, domain.ErrInvalidInvoiceID
	}

	existing, err := s.repo.FindBillingEventByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return domain.BillingEvent{}, err
	}
	if existing != nil {
		s.log.Info("renewal already recorded", zap.String("provider_invoice_id", invoiceID))
		return *existing, nil
	}

	now := s.clock.Now()
	billingDate := req.BillingDate
	if billingDate.IsZero() {
		billingDate = now
	}
	loc := s.storefront.Get().Delivery.Location()

	var (
		event      domain.BillingEvent
		deliveries []deliverydomain.Delivery
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByProviderID(ctx, tx, providerID, true)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrNotFound
		}
		if subscription.Status != domain.SubscriptionStatusActive {
			return domain.ErrNotActive
		}

		amount := req.Amount
		if amount <= 0 {
			if plan, err := plandomain.GetPlanConfig(subscription.PlanID); err == nil {
				amount = int64(plan.MonthlyTotal)
			}
		}

		event = domain.BillingEvent{
			ID:                s.genID.Generate(),
			SubscriptionID:    subscription.ID,
			ProviderInvoiceID: &invoiceID,
			Kind:              domain.BillingEventKindRenewal,
			BillingDate:       billingDate,
			Amount:            amount,
			CreatedAt:         now,
		}
		if err := s.repo.InsertBillingEvent(ctx, tx, &event); err != nil {
			return err
		}

		deliveries, err = s.deliveries.ScheduleRenewal(ctx, tx, deliverydomain.ScheduleRequest{
			SubscriptionID: subscription.ID,
			BillingEventID: event.ID,
			PlanID:         subscription.PlanID,
			AnchorDate:     deliverydomain.CalendarDate(billingDate.In(loc)),
			TimeSlot:       subscription.DeliveryTimeSlot,
		})
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			if stored, findErr := s.repo.FindBillingEventByInvoice(ctx, s.db, invoiceID); findErr == nil && stored != nil {
				return *stored, nil
			}
		}
		return domain.BillingEvent{}, err
	}

	logger.WithContext(ctx, s.log).Info("renewal recorded",
		zap.String("subscription_id", event.SubscriptionID.String()),
		zap.String("provider_invoice_id", invoiceID),
		zap.Int("deliveries", len(deliveries)),
	)
	return event, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}
	return s.cancel(ctx, s.clock.Now(), func(tx *gorm.DB) (*domain.Subscription, error) {
		return s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
	})
}

func (s *Service) CancelByProviderID(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (domain.Subscription, error) {
	providerID := strings.TrimSpace(providerSubscriptionID)
	if providerID == "" {
		return domain.Subscription{}, domain.ErrInvalidProviderID
	}
	if canceledAt.IsZero() {
		canceledAt = s.clock.Now()
	}
	return s.cancel(ctx, canceledAt, func(tx *gorm.DB) (*domain.Subscription, error) {
		return s.repo.FindByProviderID(ctx, tx, providerID, true)
	})
}

// cancel is idempotent: an already canceled subscription is returned unchanged.
// Scheduled deliveries from the next storefront day on are canceled with it.
func (s *Service) cancel(ctx context.Context, canceledAt time.Time, load func(tx *gorm.DB) (*domain.Subscription, error)) (domain.Subscription, error) {
	var (
		result   domain.Subscription
		changed  bool
		canceled int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := load(tx)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrNotFound
		}
		if subscription.Status == domain.SubscriptionStatusCanceled {
			result = *subscription
			return nil
		}

		if err := s.repo.MarkCanceled(ctx, tx, subscription.ID, canceledAt); err != nil {
			return err
		}

		loc := s.storefront.Get().Delivery.Location()
		tomorrow := deliverydomain.CalendarDate(s.clock.Now().In(loc)).AddDate(0, 0, 1)
		canceled, err = s.deliveries.CancelPending(ctx, tx, subscription.ID, tomorrow)
		if err != nil {
			return err
		}

		subscription.Status = domain.SubscriptionStatusCanceled
		subscription.CanceledAt = &canceledAt
		subscription.UpdatedAt = canceledAt
		result = *subscription
		changed = true
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	if changed {
		logger.WithContext(ctx, s.log).Info("subscription canceled",
			zap.String("subscription_id", result.ID.String()),
			zap.Int64("deliveries_canceled", canceled),
		)
		s.notifier.Notify(ctx, notify.KindCancel, cancelMessage(result, canceled))
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	status := domain.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case "", domain.SubscriptionStatusActive, domain.SubscriptionStatusCanceled:
	default:
		return domain.ListSubscriptionResponse{}, domain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	items, err := s.repo.List(ctx, s.db, domain.ListSubscriptionFilter{
		Status:       status,
		ReferralCode: strings.ToUpper(strings.TrimSpace(req.ReferralCode)),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(subscription *domain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        subscription.ID.String(),
			CreatedAt: subscription.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	subscriptions := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}

	resp := domain.ListSubscriptionResponse{Subscriptions: subscriptions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if item == nil {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListReferralEvents(ctx context.Context, code string) ([]domain.ReferralEvent, error) {
	return s.repo.ListReferralEvents(ctx, s.db, strings.ToUpper(strings.TrimSpace(code)))
}

func subscriptionMessage(sub domain.Subscription, deliveries []deliverydomain.Delivery) string {
	var b strings.Builder
	b.WriteString(":package: 新規定期便\n")
	fmt.Fprintf(&b, "プラン: %s\n", plandomain.GetPlanName(sub.PlanID))
	fmt.Fprintf(&b, "お客様: %s (%s)\n", displayOr(sub.CustomerName, "-"), logger.MaskEmail(sub.CustomerEmail))
	if len(deliveries) > 0 {
		first := strings.TrimSpace(deliveries[0].ScheduledDate.Format(time.DateOnly) + " " + sub.DeliveryTimeSlot)
		fmt.Fprintf(&b, "初回お届け: %s\n", first)
	}
	fmt.Fprintf(&b, "紹介コード: %s", displayOr(sub.ReferralCode, "なし"))
	return b.String()
}

func cancelMessage(sub domain.Subscription, canceledDeliveries int64) string {
	return fmt.Sprintf(":wave: 定期便解約\nプラン: %s\nお客様: %s\n取消したお届け: %d件",
		plandomain.GetPlanName(sub.PlanID),
		displayOr(sub.CustomerName, logger.MaskEmail(sub.CustomerEmail)),
		canceledDeliveries,
	)
}

func displayOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
