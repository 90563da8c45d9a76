package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/futorumeshi/internal/auth/domain"
	"github.com/smallbiznis/futorumeshi/internal/auth/password"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	"github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	"github.com/smallbiznis/futorumeshi/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	tokenIssuer       = "futorumeshi-admin"
	defaultSessionTTL = 12 * time.Hour
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Limiter *ratelimit.LoginLimiter `optional:"true"`
	Metrics *metrics.Metrics        `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	clock        clock.Clock
	limiter      *ratelimit.LoginLimiter
	metrics      *metrics.Metrics
	adminEmail   string
	passwordHash string
	secret       []byte
	ttl          time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Config.AuthSessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	svc := &Service{
		log:          p.Log.Named("auth.service"),
		clock:        p.Clock,
		limiter:      p.Limiter,
		metrics:      p.Metrics,
		adminEmail:   strings.ToLower(strings.TrimSpace(p.Config.AdminEmail)),
		passwordHash: strings.TrimSpace(p.Config.AdminPasswordHash),
		secret:       []byte(p.Config.AuthJWTSecret),
		ttl:          ttl,
	}
	if !svc.enabled() {
		svc.log.Warn("admin login disabled: ADMIN_EMAIL, ADMIN_PASSWORD_HASH and AUTH_JWT_SECRET must all be set")
	} else if !password.Valid(svc.passwordHash) {
		svc.log.Warn("ADMIN_PASSWORD_HASH is not an argon2id hash; every login will fail")
	}
	return svc
}

type claims struct {
	jwt.RegisteredClaims
}

func (s *Service) enabled() bool {
	return s.adminEmail != "" && s.passwordHash != "" && len(s.secret) > 0
}

// Login checks the operator credentials and issues a signed session token.
// Attempts are throttled per client address before any credential is inspected.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	log := logger.WithContext(ctx, s.log)
	if !s.enabled() {
		s.metrics.RecordLoginAttempt(ctx, "disabled")
		return nil, domain.ErrAuthDisabled
	}

	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(ctx, req.IPAddress); !ok {
			s.metrics.RecordLoginAttempt(ctx, "throttled")
			log.Warn("login throttled", zap.String("ip", req.IPAddress))
			return nil, &domain.RateLimitedError{RetryAfter: retryAfter}
		}
	}

	email, err := normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		s.metrics.RecordLoginAttempt(ctx, "rejected")
		return nil, domain.ErrInvalidCredentials
	}

	// Verify runs even for an unknown email so both paths cost the same.
	passwordOK := password.Verify(req.Password, s.passwordHash)
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
	if !passwordOK || !emailOK {
		s.metrics.RecordLoginAttempt(ctx, "rejected")
		log.Info("login rejected", zap.String("email", logger.MaskEmail(email)))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLoginAttempt(ctx, "accepted")
	log.Info("operator logged in", zap.String("email", logger.MaskEmail(email)))
	return &domain.LoginResult{
		Session:   domain.Session{Email: email, IssuedAt: now, ExpiresAt: expiresAt},
		RawToken:  token,
		ExpiresAt: expiresAt,
	}, nil
}

// Authenticate validates a session token and returns the session it encodes.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" || len(s.secret) == 0 {
		return nil, domain.ErrInvalidSession
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			logger.WithContext(ctx, s.log).Debug("session token rejected", zap.Error(err))
		}
		return nil, domain.ErrInvalidSession
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject != s.adminEmail {
		return nil, domain.ErrInvalidSession
	}

	session := &domain.Session{Email: c.Subject}
	if c.IssuedAt != nil {
		session.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
