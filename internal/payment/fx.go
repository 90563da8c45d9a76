package payment

import (
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/payment/adapters"
	"github.com/smallbiznis/futorumeshi/internal/payment/adapters/stripe"
	"github.com/smallbiznis/futorumeshi/internal/payment/domain"
	"github.com/smallbiznis/futorumeshi/internal/payment/repository"
	"github.com/smallbiznis/futorumeshi/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(webhook.NewService),
)

// NewRegistry registers Stripe only when a webhook secret is configured; without it every
// webhook is answered as an unknown provider.
func NewRegistry(cfg config.Config, clk clock.Clock, log *zap.Logger) *adapters.Registry {
	var registered []domain.PaymentAdapter
	if cfg.StripeWebhookSecret != "" {
		registered = append(registered, stripe.NewAdapter(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, clk))
	} else {
		log.Warn("stripe webhook secret not configured, stripe webhooks disabled")
	}
	return adapters.NewRegistry(registered...)
}
