// Package notify delivers operator notifications to Slack. Delivery is best effort:
// failures are logged and counted, never returned to the business operation.
package notify

import (
	"context"

	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	"github.com/smallbiznis/futorumeshi/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	KindOrder        = "order"
	KindSubscription = "subscription"
	KindRenewal      = "renewal"
	KindCancel       = "cancel"
	KindDigest       = "delivery_digest"
)

type Params struct {
	fx.In

	Provider   slack.Provider
	Storefront *config.StorefrontConfigHolder
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

type Notifier struct {
	provider   slack.Provider
	storefront *config.StorefrontConfigHolder
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(p Params) *Notifier {
	return &Notifier{
		provider:   p.Provider,
		storefront: p.Storefront,
		log:        p.Log.Named("notify"),
		metrics:    p.Metrics,
	}
}

// Notify posts text to the default channel and reports whether it was delivered.
func (n *Notifier) Notify(ctx context.Context, kind, text string) bool {
	if n == nil || n.provider == nil {
		return false
	}
	if n.storefront != nil && !n.storefront.Get().Notifications.Enabled {
		n.metrics.RecordNotification(ctx, kind, "disabled")
		return false
	}

	if err := n.provider.PostMessage(ctx, "", text); err != nil {
		n.log.Warn("notification failed", zap.String("kind", kind), zap.Error(err))
		n.metrics.RecordNotification(ctx, kind, "failed")
		return false
	}
	n.metrics.RecordNotification(ctx, kind, "sent")
	return true
}

var yenPrinter = message.NewPrinter(language.Japanese)

// FormatYen renders an amount as "¥12,345".
func FormatYen(amount int64) string {
	return yenPrinter.Sprintf("¥%d", amount)
}
