package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/internal/repository/memory"
	"subbilling/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "billing-events"

func checkoutBasket(t *testing.T, store *memory.Store, userID string) *service.CheckoutSummary {
	t.Helper()
	svc := service.NewCheckoutService(store, time.Hour)
	summary, err := svc.Checkout(context.Background(), service.CheckoutInput{
		UserID:         userID,
		PlanID:         "plan-basic",
		TokenBundleIDs: []string{"bundle-500"},
		AddOnIDs:       []string{"addon-priority"},
	})
	require.NoError(t, err)
	return summary
}

func TestCaptureActivatesEverything(t *testing.T) {
	store := seededStore()
	checkout := checkoutBasket(t, store, "user-1")

	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)
	summary, err := svc.Capture(context.Background(),
		event.NewPaymentCaptured(checkout.InvoiceID, "pay-ref-1", "stripe"))
	require.NoError(t, err)

	assert.False(t, summary.AlreadyPaid)
	assert.Equal(t, checkout.SubscriptionID, summary.SubscriptionID)
	assert.Equal(t, int64(500), summary.TokensCredited)

	invoice, err := store.Invoices().FindByID(context.Background(), checkout.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, "pay-ref-1", invoice.PaymentRef)
	assert.NotNil(t, invoice.PaidAt)

	sub, err := store.Subscriptions().FindByID(context.Background(), checkout.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.ExpiresAt)
	expected := time.Now().AddDate(0, 0, 30)
	assert.WithinDuration(t, expected, *sub.ExpiresAt, time.Minute, "monthly plan runs 30 days")

	purchase, err := store.Purchases().FindByID(context.Background(), checkout.PurchaseIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusCompleted, purchase.Status)
	assert.True(t, purchase.TokensCredited)

	balance, err := store.TokenBalances().FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, int64(500), balance.Balance)

	addOnSub, err := store.AddOnSubscriptions().FindByID(context.Background(), checkout.AddOnIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, addOnSub.Status)

	messages := store.OutboxMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, testTopic, messages[0].Topic)
	assert.Equal(t, checkout.InvoiceID, messages[0].MessageKey)
	assert.Contains(t, messages[0].Payload, event.NamePaymentCaptured)
}

func TestCaptureReplayIsIdempotent(t *testing.T) {
	store := seededStore()
	checkout := checkoutBasket(t, store, "user-1")

	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)
	ev := event.NewPaymentCaptured(checkout.InvoiceID, "pay-ref-1", "stripe")

	_, err := svc.Capture(context.Background(), ev)
	require.NoError(t, err)

	sub, err := store.Subscriptions().FindByID(context.Background(), checkout.SubscriptionID)
	require.NoError(t, err)
	firstExpiry := *sub.ExpiresAt

	summary, err := svc.Capture(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, summary.AlreadyPaid)
	assert.Empty(t, summary.TokenBundleIDs, "replay must not re-complete purchases")
	assert.Zero(t, summary.TokensCredited)

	balance, err := store.TokenBalances().FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.Balance, "no double credit")

	sub, err = store.Subscriptions().FindByID(context.Background(), checkout.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, firstExpiry, *sub.ExpiresAt, "replay must not reset the expiry clock")

	assert.Len(t, store.OutboxMessages(), 1, "replay writes no second notification")
}

func TestCaptureCancelsPreviousActiveSubscription(t *testing.T) {
	store := seededStore()
	first := checkoutBasket(t, store, "user-1")

	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)
	_, err := svc.Capture(context.Background(),
		event.NewPaymentCaptured(first.InvoiceID, "pay-1", "stripe"))
	require.NoError(t, err)

	checkoutSvc := service.NewCheckoutService(store, time.Hour)
	second, err := checkoutSvc.Checkout(context.Background(), service.CheckoutInput{
		UserID: "user-1",
		PlanID: "plan-yearly",
	})
	require.NoError(t, err)

	_, err = svc.Capture(context.Background(),
		event.NewPaymentCaptured(second.InvoiceID, "pay-2", "stripe"))
	require.NoError(t, err)

	old, err := store.Subscriptions().FindByID(context.Background(), first.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, old.Status)

	current, err := store.Subscriptions().FindActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.SubscriptionID, current.ID)
	expected := time.Now().AddDate(0, 0, 365)
	assert.WithinDuration(t, expected, *current.ExpiresAt, time.Minute)
}

func TestCaptureLateWebhookPaysCancelledInvoice(t *testing.T) {
	store := seededStore()
	checkout := checkoutBasket(t, store, "user-1")
	ctx := context.Background()

	// The stale-invoice sweep closed the payment window before the
	// provider's notification arrived; the money was taken anyway.
	invoice, err := store.Invoices().FindByID(ctx, checkout.InvoiceID)
	require.NoError(t, err)
	invoice.MarkCancelled()
	require.NoError(t, store.Invoices().Save(ctx, invoice))

	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)
	summary, err := svc.Capture(ctx,
		event.NewPaymentCaptured(checkout.InvoiceID, "pay-late", "stripe"))
	require.NoError(t, err, "a capture records money already received")

	invoice, err = store.Invoices().FindByID(ctx, checkout.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, "pay-late", invoice.PaymentRef)

	assert.Equal(t, checkout.SubscriptionID, summary.SubscriptionID)
	assert.Equal(t, int64(500), summary.TokensCredited)
}

type unavailableCatalog struct{}

func (unavailableCatalog) FindPlanByID(context.Context, string) (*model.TarifPlan, error) {
	return nil, errors.New("catalog unavailable")
}

func (unavailableCatalog) FindBundleByID(context.Context, string) (*model.TokenBundle, error) {
	return nil, errors.New("catalog unavailable")
}

func (unavailableCatalog) FindAddOnByID(context.Context, string) (*model.AddOn, error) {
	return nil, errors.New("catalog unavailable")
}

// brokenCatalogStore simulates an infrastructure failure on plan
// lookups while every other repository keeps working.
type brokenCatalogStore struct {
	*memory.Store
}

func (s brokenCatalogStore) Catalog() repository.CatalogRepository {
	return unavailableCatalog{}
}

func (s brokenCatalogStore) Atomic(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

func TestCaptureFailsWhenCatalogUnavailable(t *testing.T) {
	store := seededStore()
	checkout := checkoutBasket(t, store, "user-1")
	ctx := context.Background()

	svc := service.NewCaptureService(brokenCatalogStore{Store: store}, service.NopLocker{}, testTopic)
	_, err := svc.Capture(ctx,
		event.NewPaymentCaptured(checkout.InvoiceID, "pay-1", "stripe"))
	assert.ErrorContains(t, err, "catalog unavailable")

	sub, err := store.Subscriptions().FindByID(ctx, checkout.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, sub.Status,
		"a transient lookup failure must not activate with a guessed window")
}

func TestCaptureUnknownInvoice(t *testing.T) {
	store := seededStore()
	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)

	_, err := svc.Capture(context.Background(),
		event.NewPaymentCaptured("no-such-invoice", "pay-1", "stripe"))
	assert.Error(t, err)
}

func TestCaptureRequiresInvoiceID(t *testing.T) {
	store := seededStore()
	svc := service.NewCaptureService(store, service.NopLocker{}, testTopic)

	_, err := svc.Capture(context.Background(), event.NewPaymentCaptured("", "pay-1", ""))
	assert.Error(t, err)
}
