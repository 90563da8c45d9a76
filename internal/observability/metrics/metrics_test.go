package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("referral_code", "TANAKA01"),
		attribute.String("customer_email", "a@example.jp"),
		attribute.String("event_type", "invoice.paid"),
	)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" {
		t.Fatalf("expected event_type to be retained, got %q", attrs[0].Key)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "stripe", "invoice.paid", "processed")
	m.RecordDeliveriesScheduled(context.Background(), "INITIAL", 4)
	m.RecordReferralStats(context.Background(), "all", "hit")
	m.RecordNotification(context.Background(), "digest", "sent")
	m.RecordLoginAttempt(context.Background(), "denied")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "futorumeshi"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordDeliveriesScheduled(context.Background(), "RENEWAL", 2)
}
