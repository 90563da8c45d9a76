package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
	"github.com/smallbiznis/futorumeshi/internal/payment/repository"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubAdapter struct {
	verifyErr error
	event     *paymentdomain.PaymentEvent
	parseErr  error
}

func (a *stubAdapter) Provider() string { return "stripe" }

func (a *stubAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return a.verifyErr
}

func (a *stubAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	copied := *a.event
	return &copied, nil
}

type stubOrders struct {
	orderdomain.Service
	calls []orderdomain.CheckoutOrderRequest
}

func (s *stubOrders) CreateFromCheckout(ctx context.Context, req orderdomain.CheckoutOrderRequest) (orderdomain.Order, error) {
	s.calls = append(s.calls, req)
	return orderdomain.Order{}, nil
}

type stubSubscriptions struct {
	subscriptiondomain.Service
	createErr error
	created   []subscriptiondomain.CheckoutSubscriptionRequest
	renewals  []subscriptiondomain.RenewalRequest
	canceled  []string
}

func (s *stubSubscriptions) CreateFromCheckout(ctx context.Context, req subscriptiondomain.CheckoutSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	s.created = append(s.created, req)
	return subscriptiondomain.Subscription{}, s.createErr
}

func (s *stubSubscriptions) RecordRenewal(ctx context.Context, req subscriptiondomain.RenewalRequest) (subscriptiondomain.BillingEvent, error) {
	s.renewals = append(s.renewals, req)
	return subscriptiondomain.BillingEvent{}, nil
}

func (s *stubSubscriptions) CancelByProviderID(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (subscriptiondomain.Subscription, error) {
	s.canceled = append(s.canceled, providerSubscriptionID)
	return subscriptiondomain.Subscription{}, nil
}

type fixture struct {
	db      *gorm.DB
	adapter *stubAdapter
	orders  *stubOrders
	subs    *stubSubscriptions
	svc     paymentdomain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&paymentdomain.EventRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	adapter := &stubAdapter{}
	orders := &stubOrders{}
	subs := &stubSubscriptions{}
	svc := NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)),
		Repo:          repository.Provide(),
		Adapters:      adapters.NewRegistry(adapter),
		Orders:        orders,
		Subscriptions: subs,
	})
	return fixture{db: db, adapter: adapter, orders: orders, subs: subs, svc: svc}
}

var body = []byte(`{"id":"evt_1"}`)

func subscriptionEvent(id string) *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: id,
		Type:            paymentdomain.EventTypeSubscriptionCreated,
		OccurredAt:      time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Checkout: &paymentdomain.CheckoutCompleted{
			SessionID:              "cs_1",
			ProviderSubscriptionID: "sub_1",
			CustomerEmail:          "a@example.jp",
			Metadata:               paymentdomain.CheckoutMetadata{PlanID: plandomain.PlanMonthly12},
		},
	}
}

func storedEvent(t *testing.T, db *gorm.DB, id string) paymentdomain.EventRecord {
	t.Helper()
	var record paymentdomain.EventRecord
	require.NoError(t, db.Where("provider_event_id = ?", id).First(&record).Error)
	return record
}

func TestIngestDispatchesAndDedups(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.adapter.event = subscriptionEvent("evt_sub")

	res, err := f.svc.IngestWebhook(ctx, "Stripe", body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)
	require.Len(t, f.subs.created, 1)
	assert.Equal(t, "sub_1", f.subs.created[0].ProviderSubscriptionID)

	again, err := f.svc.IngestWebhook(ctx, "stripe", body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeDuplicate, again.Outcome)
	assert.Len(t, f.subs.created, 1)

	record := storedEvent(t, f.db, "evt_sub")
	assert.NotNil(t, record.ProcessedAt)
	assert.Equal(t, paymentdomain.OutcomeProcessed, record.Outcome)
}

func TestIngestRoutesEventTypes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.adapter.event = &paymentdomain.PaymentEvent{
		ProviderEventID: "evt_order",
		Type:            paymentdomain.EventTypeOrderPaid,
		Checkout:        &paymentdomain.CheckoutCompleted{SessionID: "cs_o", Metadata: paymentdomain.CheckoutMetadata{ReferralCode: "GYM01", Quantity: 1}},
	}
	_, err := f.svc.IngestWebhook(ctx, "stripe", body, nil)
	require.NoError(t, err)
	require.Len(t, f.orders.calls, 1)
	assert.Equal(t, "GYM01", f.orders.calls[0].ReferralCode)

	f.adapter.event = &paymentdomain.PaymentEvent{
		ProviderEventID: "evt_inv",
		Type:            paymentdomain.EventTypeSubscriptionRenewed,
		Invoice:         &paymentdomain.InvoicePaid{ProviderInvoiceID: "in_2", ProviderSubscriptionID: "sub_1"},
	}
	_, err = f.svc.IngestWebhook(ctx, "stripe", body, nil)
	require.NoError(t, err)
	require.Len(t, f.subs.renewals, 1)

	f.adapter.event = &paymentdomain.PaymentEvent{
		ProviderEventID: "evt_del",
		Type:            paymentdomain.EventTypeSubscriptionCanceled,
		Cancellation:    &paymentdomain.SubscriptionDeleted{ProviderSubscriptionID: "sub_1"},
	}
	_, err = f.svc.IngestWebhook(ctx, "stripe", body, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, f.subs.canceled)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := setup(t)
	f.adapter.verifyErr = paymentdomain.ErrInvalidSignature

	_, err := f.svc.IngestWebhook(context.Background(), "stripe", body, nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestIngestUnknownProviderAndPayload(t *testing.T) {
	f := setup(t)

	_, err := f.svc.IngestWebhook(context.Background(), "paypay", body, nil)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = f.svc.IngestWebhook(context.Background(), "", body, nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidProvider)

	_, err = f.svc.IngestWebhook(context.Background(), "stripe", []byte("not json"), nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestIngestIgnoredEventIsNotRecorded(t *testing.T) {
	f := setup(t)
	f.adapter.parseErr = paymentdomain.ErrEventIgnored

	res, err := f.svc.IngestWebhook(context.Background(), "stripe", body, nil)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeIgnored, res.Outcome)

	var count int64
	f.db.Model(&paymentdomain.EventRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestIngestPermanentRejectionStopsRetries(t *testing.T) {
	f := setup(t)
	f.adapter.event = subscriptionEvent("evt_bad_plan")
	f.subs.createErr = fmt.Errorf("%w: %q", plandomain.ErrInvalidPlan, "subscription-monthly-36")

	res, err := f.svc.IngestWebhook(context.Background(), "stripe", body, nil)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeRejected, res.Outcome)

	record := storedEvent(t, f.db, "evt_bad_plan")
	assert.NotNil(t, record.ProcessedAt)
	assert.Equal(t, paymentdomain.OutcomeRejected, record.Outcome)
}

func TestIngestTransientFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.adapter.event = subscriptionEvent("evt_retry")
	f.subs.createErr = errors.New("connection reset")

	_, err := f.svc.IngestWebhook(ctx, "stripe", body, nil)
	require.Error(t, err)
	assert.Nil(t, storedEvent(t, f.db, "evt_retry").ProcessedAt)

	f.subs.createErr = nil
	res, err := f.svc.IngestWebhook(ctx, "stripe", body, nil)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)
	assert.Len(t, f.subs.created, 2)
}
