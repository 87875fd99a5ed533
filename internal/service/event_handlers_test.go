package service_test

import (
	"context"
	"testing"
	"time"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository/memory"
	"subbilling/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(store *memory.Store) *event.Dispatcher {
	d := event.NewDispatcher()
	service.RegisterHandlers(
		d,
		service.NewCheckoutService(store, time.Hour),
		service.NewCaptureService(store, service.NopLocker{}, testTopic),
		service.NewRefundService(store, service.NopLocker{}, testTopic),
		service.NewRestoreService(store, service.NopLocker{}, testTopic),
		store,
		testTopic,
	)
	return d
}

func TestCheckoutThroughDispatcher(t *testing.T) {
	store := seededStore()
	d := newDispatcher(store)

	result := d.Emit(context.Background(), event.NewCheckoutRequested(
		"user-1", "plan-basic", []string{"bundle-500"}, nil, "EUR", "card"))

	require.True(t, result.Success, "err: %s", result.Err)
	assert.NotEmpty(t, result.Data["invoice_id"])
	assert.NotEmpty(t, result.Data["subscription_id"])
	assert.Equal(t, 1, result.Data["handlers_invoked"])
}

func TestCaptureThroughDispatcher(t *testing.T) {
	store := seededStore()
	d := newDispatcher(store)
	checkout := checkoutBasket(t, store, "user-1")

	result := d.Emit(context.Background(),
		event.NewPaymentCaptured(checkout.InvoiceID, "pay-1", "stripe"))

	require.True(t, result.Success, "err: %s", result.Err)
	assert.Equal(t, checkout.SubscriptionID, result.Data["subscription_id"])
	assert.Equal(t, int64(500), result.Data["tokens_credited"])
}

func TestDispatcherReportsSagaFailure(t *testing.T) {
	store := seededStore()
	d := newDispatcher(store)

	result := d.Emit(context.Background(),
		event.NewPaymentRefunded("no-such-invoice", "ref-1"))

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "refund failed")
}

func TestSubscriptionCancelledHandler(t *testing.T) {
	store := seededStore()
	d := newDispatcher(store)
	ctx := context.Background()

	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-basic",
	}
	sub.Activate(30)
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	addOnSub := model.AddOnSubscription{
		ID:             uuid.NewString(),
		UserID:         "user-1",
		AddOnID:        "addon-priority",
		SubscriptionID: &sub.ID,
	}
	addOnSub.Activate()
	require.NoError(t, store.AddOnSubscriptions().Create(ctx, &addOnSub))

	ev := event.SubscriptionCancelled{SubscriptionID: sub.ID, Reason: "user request"}
	result := d.Emit(ctx, ev)
	require.True(t, result.Success, "err: %s", result.Err)

	got, err := store.Subscriptions().FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, got.Status)

	gotAddOn, err := store.AddOnSubscriptions().FindByID(ctx, addOnSub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, gotAddOn.Status)

	// Replay is a no-op.
	result = d.Emit(ctx, ev)
	assert.True(t, result.Success)
}

func TestPaymentFailedHandlerRecordsOutbox(t *testing.T) {
	store := seededStore()
	d := newDispatcher(store)

	result := d.Emit(context.Background(), event.PaymentFailed{
		SubscriptionID: "sub-1",
		UserID:         "user-1",
		ErrorCode:      "card_declined",
		ErrorMessage:   "insufficient funds",
	})
	require.True(t, result.Success, "err: %s", result.Err)

	messages := store.OutboxMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "sub-1", messages[0].MessageKey)
	assert.Contains(t, messages[0].Payload, event.NamePaymentFailed)
	assert.Contains(t, messages[0].Payload, "card_declined")
}
