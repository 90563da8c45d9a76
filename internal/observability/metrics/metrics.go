package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents       metric.Int64Counter
	deliveriesScheduled metric.Int64Counter
	referralStats       metric.Int64Counter
	notifications       metric.Int64Counter
	loginAttempts       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "futorumeshi"
	}
	meter := provider.Meter(name)

	paymentEvents, err := meter.Int64Counter("futorumeshi_payment_events_total")
	if err != nil {
		return nil, err
	}
	deliveriesScheduled, err := meter.Int64Counter("futorumeshi_deliveries_scheduled_total")
	if err != nil {
		return nil, err
	}
	referralStats, err := meter.Int64Counter("futorumeshi_referral_stats_requests_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("futorumeshi_notifications_total")
	if err != nil {
		return nil, err
	}
	loginAttempts, err := meter.Int64Counter("futorumeshi_admin_login_attempts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentEvents:       paymentEvents,
		deliveriesScheduled: deliveriesScheduled,
		referralStats:       referralStats,
		notifications:       notifications,
		loginAttempts:       loginAttempts,
	}, nil
}

// RecordPaymentEvent counts webhook events by type and processing outcome.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeliveriesScheduled adds the number of delivery rows created for a billing event.
func (m *Metrics) RecordDeliveriesScheduled(ctx context.Context, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.deliveriesScheduled.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordReferralStats counts stats requests; cache is "hit", "miss" or "bypass".
func (m *Metrics) RecordReferralStats(ctx context.Context, scope, cache string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("scope", strings.TrimSpace(scope)),
		attribute.String("cache", strings.TrimSpace(cache)),
	)
	m.referralStats.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotification(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"kind":        {},
	"scope":       {},
	"cache":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
