package slack

import (
	"github.com/smallbiznis/futorumeshi/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewProvider),
)

// NewProvider falls back to a no-op when SLACK_WEBHOOK_URL is unset so local runs stay quiet.
func NewProvider(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SlackWebhookURL == "" {
		log.Info("slack webhook not configured, notifications disabled")
		return &NoOpProvider{}
	}
	return NewWebhookProvider(cfg.SlackWebhookURL, cfg.SlackChannel, nil, log)
}
