package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/notify"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	"github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	defaultCurrency = "jpy"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Notifier *notify.Notifier `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	notifier *notify.Notifier
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		notifier: p.Notifier,
	}
}

func (s *Service) CreateFromCheckout(ctx context.Context, req domain.CheckoutOrderRequest) (domain.Order, error) {
	sessionID := strings.TrimSpace(req.CheckoutSessionID)
	if sessionID == "" {
		return domain.Order{}, domain.ErrInvalidSession
	}

	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Order{}, domain.ErrInvalidEmail
	}
	if req.AmountTotal < 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	existing, err := s.repo.FindByCheckoutSession(ctx, s.db, sessionID)
	if err != nil {
		return domain.Order{}, err
	}
	if existing != nil {
		s.log.Info("checkout order already recorded", zap.String("checkout_session_id", sessionID))
		return *existing, nil
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:                s.genID.Generate(),
		CheckoutSessionID: sessionID,
		CustomerEmail:     email,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		MenuSet:           strings.TrimSpace(req.MenuSet),
		PlanID:            strings.TrimSpace(req.PlanID),
		Quantity:          quantity,
		AmountTotal:       req.AmountTotal,
		Currency:          currency,
		ReferralCode:      strings.ToUpper(strings.TrimSpace(req.ReferralCode)),
		Status:            domain.OrderStatusPaid,
		Metadata:          datatypes.JSONMap(req.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.Order{}, err
		}
		// a concurrent delivery of the same session won the insert
		stored, findErr := s.repo.FindByCheckoutSession(ctx, s.db, sessionID)
		if findErr != nil {
			return domain.Order{}, findErr
		}
		if stored == nil {
			return domain.Order{}, err
		}
		return *stored, nil
	}

	logger.WithContext(ctx, s.log).Info("order recorded",
		zap.String("order_id", order.ID.String()),
		zap.String("checkout_session_id", sessionID),
		zap.Int64("amount_total", order.AmountTotal),
		zap.String("referral_code", order.ReferralCode),
	)

	s.notifier.Notify(ctx, notify.KindOrder, orderMessage(order))
	return order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	items, err := s.repo.List(ctx, s.db, domain.ListOrderFilter{
		ReferralCode: strings.ToUpper(strings.TrimSpace(req.ReferralCode)),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(order *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	resp := domain.ListOrderResponse{Orders: derefAll(items)}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) ListReferred(ctx context.Context, code string) ([]domain.Order, error) {
	items, err := s.repo.ListReferred(ctx, s.db, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	return derefAll(items), nil
}

func orderMessage(order domain.Order) string {
	var b strings.Builder
	b.WriteString(":shopping_trolley: 新規注文\n")
	fmt.Fprintf(&b, "セット: %s × %d\n", displayOr(order.MenuSet, "-"), order.Quantity)
	fmt.Fprintf(&b, "金額: %s\n", notify.FormatYen(order.AmountTotal))
	fmt.Fprintf(&b, "お客様: %s (%s)\n", displayOr(order.CustomerName, "-"), logger.MaskEmail(order.CustomerEmail))
	fmt.Fprintf(&b, "紹介コード: %s", displayOr(order.ReferralCode, "なし"))
	return b.String()
}

func displayOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func derefAll(items []*domain.Order) []domain.Order {
	out := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}
