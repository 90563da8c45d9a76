package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/clock"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
)

var now = time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"invoice.paid","data":{"object":{}}}`)

	adapter := NewAdapter(secret, 0, clock.NewFakeClock(now))
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
}

func TestVerifySignatureTolerance(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	adapter := NewAdapter(secret, 5*time.Minute, clock.NewFakeClock(now))

	cases := []struct {
		name   string
		signed time.Time
		ok     bool
	}{
		{"fresh", now.Add(-time.Minute), true},
		{"edge", now.Add(-5 * time.Minute), true},
		{"stale", now.Add(-6 * time.Minute), false},
		{"future", now.Add(6 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, tc.signed.Unix()))
			err := adapter.Verify(context.Background(), payload, header)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestParseCheckoutSession(t *testing.T) {
	created := now.Unix()
	tests := []struct {
		name     string
		mode     string
		extra    map[string]any
		wantType string
	}{
		{"one-time order", "payment", nil, paymentdomain.EventTypeOrderPaid},
		{"subscription", "subscription", map[string]any{"subscription": "sub_1", "invoice": "in_1"}, paymentdomain.EventTypeSubscriptionCreated},
	}

	adapter := NewAdapter("whsec_test", 0, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			object := map[string]any{
				"id":             "cs_1",
				"mode":           tt.mode,
				"payment_status": "paid",
				"customer":       "cus_1",
				"amount_total":   21000,
				"currency":       "JPY",
				"created":        created,
				"customer_details": map[string]any{
					"email": "hanako@example.jp",
					"name":  "山田花子",
				},
				"metadata": map[string]any{
					"plan_id":                 "subscription-monthly-24",
					"menu_set":                "ふとるめし12食セット",
					"referral_code":           "GYM01",
					"preferred_delivery_date": "2024-05-20",
					"delivery_time_slot":      "午前中",
					"quantity":                "2",
				},
			}
			for k, v := range tt.extra {
				object[k] = v
			}
			payload := mustJSON(t, map[string]any{
				"id":      "evt_cs",
				"type":    "checkout.session.completed",
				"created": created,
				"data":    map[string]any{"object": object},
			})

			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			checkout := event.Checkout
			if checkout == nil {
				t.Fatalf("expected checkout payload")
			}
			if checkout.CustomerEmail != "hanako@example.jp" || checkout.CustomerName != "山田花子" {
				t.Fatalf("unexpected customer: %+v", checkout)
			}
			if checkout.Currency != "jpy" {
				t.Fatalf("expected lower-case currency, got %s", checkout.Currency)
			}
			if checkout.Metadata.ReferralCode != "GYM01" || checkout.Metadata.Quantity != 2 {
				t.Fatalf("unexpected metadata: %+v", checkout.Metadata)
			}
			if !event.OccurredAt.Equal(now) {
				t.Fatalf("expected occurred at %s, got %s", now, event.OccurredAt)
			}
		})
	}
}

func TestParseIgnoredEvents(t *testing.T) {
	adapter := NewAdapter("whsec_test", 0, nil)
	payloads := map[string][]byte{
		"unrelated type": mustJSON(t, map[string]any{"id": "evt_1", "type": "charge.succeeded", "data": map[string]any{"object": map[string]any{}}}),
		"unpaid session": mustJSON(t, map[string]any{"id": "evt_2", "type": "checkout.session.completed", "data": map[string]any{"object": map[string]any{"id": "cs_1", "mode": "payment", "payment_status": "unpaid"}}}),
		"first invoice":  mustJSON(t, map[string]any{"id": "evt_3", "type": "invoice.paid", "data": map[string]any{"object": map[string]any{"id": "in_1", "subscription": "sub_1", "billing_reason": "subscription_create"}}}),
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := adapter.Parse(context.Background(), payload)
			if !errors.Is(err, paymentdomain.ErrEventIgnored) {
				t.Fatalf("expected ignored, got %v", err)
			}
		})
	}
}

func TestParseInvoiceAndCancellation(t *testing.T) {
	adapter := NewAdapter("whsec_test", 0, nil)
	paidAt := now.Add(time.Hour).Unix()

	invoice, err := adapter.Parse(context.Background(), mustJSON(t, map[string]any{
		"id":   "evt_in",
		"type": "invoice.paid",
		"data": map[string]any{"object": map[string]any{
			"id":                 "in_2",
			"subscription":       "sub_1",
			"billing_reason":     "subscription_cycle",
			"amount_paid":        21000,
			"status_transitions": map[string]any{"paid_at": paidAt},
		}},
	}))
	if err != nil {
		t.Fatalf("parse invoice: %v", err)
	}
	if invoice.Type != paymentdomain.EventTypeSubscriptionRenewed || invoice.Invoice.AmountPaid != 21000 {
		t.Fatalf("unexpected invoice event: %+v", invoice)
	}
	if invoice.Invoice.PaidAt.Unix() != paidAt {
		t.Fatalf("expected paid_at to win over created")
	}

	deleted, err := adapter.Parse(context.Background(), mustJSON(t, map[string]any{
		"id":      "evt_del",
		"type":    "customer.subscription.deleted",
		"created": now.Unix(),
		"data":    map[string]any{"object": map[string]any{"id": "sub_1"}},
	}))
	if err != nil {
		t.Fatalf("parse deletion: %v", err)
	}
	if deleted.Cancellation == nil || deleted.Cancellation.ProviderSubscriptionID != "sub_1" {
		t.Fatalf("unexpected deletion event: %+v", deleted)
	}
	if !deleted.Cancellation.CanceledAt.Equal(now) {
		t.Fatalf("expected event created time as fallback")
	}
}

func TestParseInvalidPayload(t *testing.T) {
	adapter := NewAdapter("whsec_test", 0, nil)
	if _, err := adapter.Parse(context.Background(), []byte("{")); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"type":"invoice.paid"}`)); !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
