package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/clock"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
)

const (
	ProviderName = "stripe"

	DefaultTolerance = 5 * time.Minute
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	clock         clock.Clock
}

func NewAdapter(webhookSecret string, tolerance time.Duration, clk clock.Clock) *Adapter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     tolerance,
		clock:         clk,
	}
}

func (a *Adapter) Provider() string {
	return ProviderName
}

// Verify checks the v1 HMAC-SHA256 signature and rejects timestamps outside the tolerance window.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" || a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := a.clock.Now().Sub(time.Unix(unix, 0))
	if math.Abs(float64(skew)) > float64(a.tolerance) {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return a.parseCheckoutSession(event, payload)
	case "invoice.paid":
		return a.parseInvoicePaid(event, payload)
	case "customer.subscription.deleted":
		return a.parseSubscriptionDeleted(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID              string                 `json:"id"`
	Mode            string                 `json:"mode"`
	PaymentStatus   string                 `json:"payment_status"`
	Customer        string                 `json:"customer"`
	Subscription    string                 `json:"subscription"`
	Invoice         string                 `json:"invoice"`
	AmountTotal     int64                  `json:"amount_total"`
	Currency        string                 `json:"currency"`
	CustomerEmail   string                 `json:"customer_email"`
	CustomerDetails *stripeCustomerDetails `json:"customer_details"`
	Created         int64                  `json:"created"`
	Metadata        map[string]any         `json:"metadata"`
}

type stripeCustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type stripeInvoice struct {
	ID                string                  `json:"id"`
	Subscription      string                  `json:"subscription"`
	BillingReason     string                  `json:"billing_reason"`
	AmountPaid        int64                   `json:"amount_paid"`
	Created           int64                   `json:"created"`
	StatusTransitions stripeStatusTransitions `json:"status_transitions"`
}

type stripeStatusTransitions struct {
	PaidAt int64 `json:"paid_at"`
}

type stripeSubscription struct {
	ID         string `json:"id"`
	CanceledAt int64  `json:"canceled_at"`
	EndedAt    int64  `json:"ended_at"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// delayed methods (konbini, bank transfer) complete unpaid and follow up with async_payment_succeeded
	if session.PaymentStatus == "unpaid" {
		return nil, paymentdomain.ErrEventIgnored
	}

	var eventType string
	switch session.Mode {
	case "payment":
		eventType = paymentdomain.EventTypeOrderPaid
	case "subscription":
		if strings.TrimSpace(session.Subscription) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		eventType = paymentdomain.EventTypeSubscriptionCreated
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	email := session.CustomerEmail
	var name string
	if session.CustomerDetails != nil {
		if session.CustomerDetails.Email != "" {
			email = session.CustomerDetails.Email
		}
		name = session.CustomerDetails.Name
	}

	quantity := 1
	if raw := readMetadataValue(session.Metadata, "quantity"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			quantity = parsed
		}
	}

	return &paymentdomain.PaymentEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            eventType,
		OccurredAt:      timestamp(session.Created, event.Created),
		RawPayload:      payload,
		Checkout: &paymentdomain.CheckoutCompleted{
			SessionID:              session.ID,
			ProviderCustomerID:     strings.TrimSpace(session.Customer),
			ProviderSubscriptionID: strings.TrimSpace(session.Subscription),
			ProviderInvoiceID:      strings.TrimSpace(session.Invoice),
			CustomerEmail:          strings.TrimSpace(email),
			CustomerName:           strings.TrimSpace(name),
			AmountTotal:            session.AmountTotal,
			Currency:               strings.ToLower(strings.TrimSpace(session.Currency)),
			Metadata: paymentdomain.CheckoutMetadata{
				PlanID:                readMetadataValue(session.Metadata, "plan_id"),
				MenuSet:               readMetadataValue(session.Metadata, "menu_set"),
				ReferralCode:          readMetadataValue(session.Metadata, "referral_code"),
				PreferredDeliveryDate: readMetadataValue(session.Metadata, "preferred_delivery_date"),
				DeliveryTimeSlot:      readMetadataValue(session.Metadata, "delivery_time_slot"),
				Quantity:              quantity,
			},
			RawMetadata: session.Metadata,
		},
	}, nil
}

// parseInvoicePaid only accepts cycle invoices; the first invoice is covered by the checkout session.
func (a *Adapter) parseInvoicePaid(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if invoice.BillingReason != "subscription_cycle" {
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(invoice.ID) == "" || strings.TrimSpace(invoice.Subscription) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	paidAt := timestamp(invoice.StatusTransitions.PaidAt, invoice.Created)
	if paidAt.IsZero() {
		paidAt = timestamp(event.Created, 0)
	}

	return &paymentdomain.PaymentEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeSubscriptionRenewed,
		OccurredAt:      paidAt,
		RawPayload:      payload,
		Invoice: &paymentdomain.InvoicePaid{
			ProviderInvoiceID:      strings.TrimSpace(invoice.ID),
			ProviderSubscriptionID: strings.TrimSpace(invoice.Subscription),
			AmountPaid:             invoice.AmountPaid,
			PaidAt:                 paidAt,
		},
	}, nil
}

func (a *Adapter) parseSubscriptionDeleted(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var subscription stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(subscription.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	canceledAt := timestamp(subscription.CanceledAt, subscription.EndedAt)
	if canceledAt.IsZero() {
		canceledAt = timestamp(event.Created, 0)
	}

	return &paymentdomain.PaymentEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeSubscriptionCanceled,
		OccurredAt:      canceledAt,
		RawPayload:      payload,
		Cancellation: &paymentdomain.SubscriptionDeleted{
			ProviderSubscriptionID: strings.TrimSpace(subscription.ID),
			CanceledAt:             canceledAt,
		},
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
