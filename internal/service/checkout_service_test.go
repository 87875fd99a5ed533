package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"subbilling/internal/model"
	"subbilling/internal/repository/memory"
	"subbilling/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *memory.Store {
	store := memory.NewStore()
	store.AddPlan(model.TarifPlan{
		ID:            "plan-basic",
		Name:          "Basic",
		Price:         decimal.RequireFromString("29.99"),
		BillingPeriod: model.BillingPeriodMonthly,
		IsActive:      true,
	})
	store.AddPlan(model.TarifPlan{
		ID:            "plan-trial",
		Name:          "Trial Plan",
		Price:         decimal.RequireFromString("49.99"),
		BillingPeriod: model.BillingPeriodMonthly,
		TrialDays:     14,
		IsActive:      true,
	})
	store.AddPlan(model.TarifPlan{
		ID:            "plan-yearly",
		Name:          "Yearly",
		Price:         decimal.RequireFromString("299.00"),
		BillingPeriod: model.BillingPeriodYearly,
		IsActive:      true,
	})
	store.AddPlan(model.TarifPlan{
		ID:            "plan-retired",
		Name:          "Retired",
		Price:         decimal.RequireFromString("9.99"),
		BillingPeriod: model.BillingPeriodMonthly,
		IsActive:      false,
	})
	store.AddBundle(model.TokenBundle{
		ID:          "bundle-500",
		Name:        "500 Tokens",
		Price:       decimal.RequireFromString("10.00"),
		TokenAmount: 500,
		IsActive:    true,
	})
	store.AddAddOn(model.AddOn{
		ID:       "addon-priority",
		Name:     "Priority Support",
		Price:    decimal.RequireFromString("15.00"),
		IsActive: true,
	})
	return store
}

func TestCheckoutFullBasket(t *testing.T) {
	store := seededStore()
	svc := service.NewCheckoutService(store, time.Hour)

	summary, err := svc.Checkout(context.Background(), service.CheckoutInput{
		UserID:         "user-1",
		PlanID:         "plan-basic",
		TokenBundleIDs: []string{"bundle-500"},
		AddOnIDs:       []string{"addon-priority"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.LineItems)
	assert.True(t, summary.TotalAmount.Equal(decimal.RequireFromString("54.99")),
		"got %s", summary.TotalAmount)
	assert.True(t, strings.HasPrefix(summary.InvoiceNumber, "INV-"))
	assert.False(t, summary.Trialing)

	invoice, err := store.Invoices().FindByID(context.Background(), summary.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, "EUR", invoice.Currency)
	assert.Len(t, invoice.LineItems, 3)
	assert.NotNil(t, invoice.ExpiresAt)

	sub, err := store.Subscriptions().FindByID(context.Background(), summary.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, sub.Status)
	assert.Nil(t, sub.ExpiresAt, "activation happens at capture, not checkout")

	require.Len(t, summary.PurchaseIDs, 1)
	purchase, err := store.Purchases().FindByID(context.Background(), summary.PurchaseIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPending, purchase.Status)
	assert.Equal(t, int64(500), purchase.TokenAmount)
	require.NotNil(t, purchase.InvoiceID)
	assert.Equal(t, summary.InvoiceID, *purchase.InvoiceID)

	require.Len(t, summary.AddOnIDs, 1)
	addOnSub, err := store.AddOnSubscriptions().FindByID(context.Background(), summary.AddOnIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, addOnSub.Status)
	require.NotNil(t, addOnSub.SubscriptionID)
	assert.Equal(t, summary.SubscriptionID, *addOnSub.SubscriptionID)
}

func TestCheckoutTrialPlanSkipsInvoiceLine(t *testing.T) {
	store := seededStore()
	svc := service.NewCheckoutService(store, 0)

	summary, err := svc.Checkout(context.Background(), service.CheckoutInput{
		UserID: "user-1",
		PlanID: "plan-trial",
	})
	require.NoError(t, err)

	assert.True(t, summary.Trialing)
	assert.Equal(t, 0, summary.LineItems)
	assert.True(t, summary.TotalAmount.IsZero(), "got %s", summary.TotalAmount)

	sub, err := store.Subscriptions().FindByID(context.Background(), summary.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	expected := time.Now().AddDate(0, 0, 14)
	assert.WithinDuration(t, expected, *sub.TrialEndsAt, time.Minute)
}

func TestCheckoutValidation(t *testing.T) {
	store := seededStore()
	svc := service.NewCheckoutService(store, time.Hour)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, service.CheckoutInput{UserID: "user-1"})
	assert.Error(t, err, "empty basket")

	_, err = svc.Checkout(ctx, service.CheckoutInput{PlanID: "plan-basic"})
	assert.Error(t, err, "missing user")

	_, err = svc.Checkout(ctx, service.CheckoutInput{UserID: "user-1", PlanID: "no-such-plan"})
	assert.Error(t, err)

	_, err = svc.Checkout(ctx, service.CheckoutInput{UserID: "user-1", PlanID: "plan-retired"})
	assert.ErrorContains(t, err, "not active")

	_, err = svc.Checkout(ctx, service.CheckoutInput{
		UserID:         "user-1",
		TokenBundleIDs: []string{"no-such-bundle"},
	})
	assert.Error(t, err)
}

func TestCheckoutBundlesOnly(t *testing.T) {
	store := seededStore()
	svc := service.NewCheckoutService(store, time.Hour)

	summary, err := svc.Checkout(context.Background(), service.CheckoutInput{
		UserID:         "user-2",
		TokenBundleIDs: []string{"bundle-500"},
		Currency:       "USD",
	})
	require.NoError(t, err)

	assert.Empty(t, summary.SubscriptionID)
	assert.Equal(t, 1, summary.LineItems)
	assert.Equal(t, "USD", summary.Currency)

	require.Len(t, summary.PurchaseIDs, 1)
	purchase, err := store.Purchases().FindByID(context.Background(), summary.PurchaseIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPending, purchase.Status)
}
