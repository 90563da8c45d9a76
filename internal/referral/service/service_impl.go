package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/cache"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db"
	"github.com/smallbiznis/futorumeshi/pkg/db/option"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"github.com/smallbiznis/futorumeshi/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	StatsCache cache.Cache[string, []domain.ReferrerStats] `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	referrerRepo repository.Repository[domain.Referrer]
	statsCache   cache.Cache[string, []domain.ReferrerStats]
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	statsCache := p.StatsCache
	if statsCache == nil {
		statsCache = cache.NoopCache[string, []domain.ReferrerStats]{}
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("referral.service"),
		genID:        p.GenID,
		clock:        clk,
		referrerRepo: repository.ProvideStore[domain.Referrer](p.DB),
		statsCache:   statsCache,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateReferrerRequest) (domain.Referrer, error) {
	code, ok := domain.NormalizeCode(req.Code)
	if !ok {
		return domain.Referrer{}, domain.ErrInvalidCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Referrer{}, domain.ErrInvalidName
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Referrer{}, err
	}

	existing, err := s.referrerRepo.FindOne(ctx, &domain.Referrer{Code: code})
	if err != nil {
		return domain.Referrer{}, err
	}
	if existing != nil {
		return domain.Referrer{}, domain.ErrDuplicateCode
	}

	now := s.clock.Now()
	referrer := domain.Referrer{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Email:     email,
		Note:      strings.TrimSpace(req.Note),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.referrerRepo.Create(ctx, &referrer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Referrer{}, domain.ErrDuplicateCode
		}
		return domain.Referrer{}, err
	}

	s.log.Info("referrer created", zap.String("referral_code", code))
	return referrer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListReferrerRequest) (domain.ListReferrerResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: "id", Direction: "desc"}),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "active",
			Operator: option.EQ,
			Value:    *req.Active,
		}))
	}

	items, err := s.referrerRepo.Find(ctx, nil, opts...)
	if err != nil {
		return domain.ListReferrerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(referrer *domain.Referrer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        referrer.ID.String(),
			CreatedAt: referrer.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	referrers := make([]domain.Referrer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		referrers = append(referrers, *item)
	}

	resp := domain.ListReferrerResponse{Referrers: referrers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Referrer, error) {
	item, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.Referrer{}, err
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, code string, req domain.UpdateReferrerRequest) (domain.Referrer, error) {
	item, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.Referrer{}, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Referrer{}, domain.ErrInvalidName
		}
		updates["name"] = name
		item.Name = name
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return domain.Referrer{}, err
		}
		updates["email"] = email
		item.Email = email
	}
	if req.Note != nil {
		note := strings.TrimSpace(*req.Note)
		updates["note"] = note
		item.Note = note
	}
	if req.Active != nil {
		updates["active"] = *req.Active
		item.Active = *req.Active
	}
	if len(updates) == 0 {
		return domain.Referrer{}, domain.ErrNothingToApply
	}

	now := s.clock.Now()
	updates["updated_at"] = now
	item.UpdatedAt = now

	if err := s.referrerRepo.Update(ctx, item.ID, updates); err != nil {
		return domain.Referrer{}, err
	}

	s.log.Info("referrer updated", zap.String("referral_code", item.Code))
	return *item, nil
}

// Delete removes the referrer record only. Orders and subscriptions keep the code they were bought with.
func (s *Service) Delete(ctx context.Context, code string) error {
	item, err := s.findByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.referrerRepo.Delete(ctx, item.ID); err != nil {
		return err
	}

	s.statsCache.Delete(ctx, statsCacheKey(item.Code))
	s.statsCache.Delete(ctx, statsCacheAllKey)
	s.log.Info("referrer deleted", zap.String("referral_code", item.Code))
	return nil
}

func (s *Service) findByCode(ctx context.Context, code string) (*domain.Referrer, error) {
	normalized, ok := domain.NormalizeCode(code)
	if !ok {
		return nil, domain.ErrInvalidCode
	}
	item, err := s.referrerRepo.FindOne(ctx, &domain.Referrer{Code: normalized})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func normalizeEmail(value string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(value))
	if email == "" {
		return "", nil
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
