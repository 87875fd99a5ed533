package service_test

import (
	"context"
	"testing"
	"time"

	"subbilling/internal/model"
	"subbilling/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateSubscription(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, "user-1", "plan-yearly")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, sub.Status)

	sub, err = svc.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.ExpiresAt)
	expected := time.Now().AddDate(0, 0, 365)
	assert.WithinDuration(t, expected, *sub.ExpiresAt, time.Minute)
}

func TestActivateDefaultsToMonthlyWhenPlanMissing(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	// A plan deleted from the catalog after enrollment still activates,
	// with the monthly default window.
	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-deleted",
		Status:      model.SubscriptionStatusPending,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	got, err := svc.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
	expected := time.Now().AddDate(0, 0, 30)
	assert.WithinDuration(t, expected, *got.ExpiresAt, time.Minute)
}

func TestActivateRejectsTrialing(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	sub := model.Subscription{ID: uuid.NewString(), UserID: "user-1", TarifPlanID: "plan-trial"}
	sub.StartTrial(14)
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	_, err := svc.ActivateSubscription(ctx, sub.ID)
	assert.ErrorContains(t, err, "trialing")
}

func TestCreateSubscriptionValidatesPlan(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	_, err := svc.CreateSubscription(ctx, "user-1", "no-such-plan")
	assert.Error(t, err)

	_, err = svc.CreateSubscription(ctx, "user-1", "plan-retired")
	assert.ErrorContains(t, err, "not active")
}

func TestPauseResume(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, "user-1", "plan-basic")
	require.NoError(t, err)

	_, err = svc.PauseSubscription(ctx, sub.ID)
	assert.ErrorContains(t, err, "only active", "pending subscriptions cannot pause")

	sub, err = svc.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	expiresBefore := *sub.ExpiresAt

	sub, err = svc.PauseSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPaused, sub.Status)
	require.NotNil(t, sub.PausedAt)

	_, err = svc.PauseSubscription(ctx, sub.ID)
	assert.ErrorContains(t, err, "already paused")

	sub, err = svc.ResumeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Nil(t, sub.PausedAt)
	assert.False(t, sub.ExpiresAt.Before(expiresBefore), "paused time extends the window")

	_, err = svc.ResumeSubscription(ctx, sub.ID)
	assert.ErrorContains(t, err, "not paused")
}

func TestUpgradeIsImmediate(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, "user-1", "plan-basic")
	require.NoError(t, err)
	sub, err = svc.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)

	_, err = svc.UpgradeSubscription(ctx, sub.ID, "plan-basic")
	assert.ErrorContains(t, err, "already subscribed")

	sub, err = svc.UpgradeSubscription(ctx, sub.ID, "plan-yearly")
	require.NoError(t, err)
	assert.Equal(t, "plan-yearly", sub.TarifPlanID)
	assert.Nil(t, sub.PendingPlanID)
}

func TestDowngradeIsDeferred(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, "user-1", "plan-yearly")
	require.NoError(t, err)
	sub, err = svc.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)

	sub, err = svc.DowngradeSubscription(ctx, sub.ID, "plan-basic")
	require.NoError(t, err)
	assert.Equal(t, "plan-yearly", sub.TarifPlanID, "plan unchanged until renewal")
	require.NotNil(t, sub.PendingPlanID)
	assert.Equal(t, "plan-basic", *sub.PendingPlanID)

	// Renewal applies the queued plan.
	sub, err = svc.RenewSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan-basic", sub.TarifPlanID)
	assert.Nil(t, sub.PendingPlanID)
	expected := time.Now().AddDate(0, 0, 30)
	assert.WithinDuration(t, expected, *sub.ExpiresAt, time.Minute)
}

func TestCalculateProration(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	expires := time.Now().AddDate(0, 0, 15)
	started := time.Now().AddDate(0, 0, -15)
	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-basic",
		Status:      model.SubscriptionStatusActive,
		StartedAt:   &started,
		ExpiresAt:   &expires,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	result, err := svc.CalculateProration(ctx, sub.ID, "plan-yearly")
	require.NoError(t, err)

	// 14 full days remain (15 days minus the fraction of today).
	assert.Equal(t, 14, result.DaysRemaining)
	// 29.99 / 30 * 14 = 13.995 -> 14.00 credit
	assert.True(t, result.Credit.Equal(decimal.RequireFromString("14.00")),
		"got %s", result.Credit)
	assert.True(t, result.AmountDue.Equal(decimal.RequireFromString("285.00")),
		"got %s", result.AmountDue)
}

func TestProrationFloorsAtZero(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	expires := time.Now().AddDate(0, 0, 300)
	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-yearly",
		Status:      model.SubscriptionStatusActive,
		ExpiresAt:   &expires,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	result, err := svc.CalculateProration(ctx, sub.ID, "plan-basic")
	require.NoError(t, err)
	assert.True(t, result.AmountDue.IsZero(), "credit larger than new price floors at zero, got %s", result.AmountDue)
}

func TestExpireSubscriptionsSweep(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	expired := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-basic",
		Status:      model.SubscriptionStatusActive,
		ExpiresAt:   &past,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &expired))

	future := time.Now().Add(48 * time.Hour)
	alive := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-2",
		TarifPlanID: "plan-basic",
		Status:      model.SubscriptionStatusActive,
		ExpiresAt:   &future,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &alive))

	swept, err := svc.ExpireSubscriptions(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{expired.ID}, swept)

	got, err := store.Subscriptions().FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusExpired, got.Status)

	got, err = store.Subscriptions().FindByID(ctx, alive.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
}

func TestExpireTrialsConvertsToPending(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	ended := time.Now().Add(-time.Hour)
	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-trial",
		Status:      model.SubscriptionStatusTrialing,
		TrialEndsAt: &ended,
		ExpiresAt:   &ended,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	swept, err := svc.ExpireTrials(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, []string{sub.ID}, swept)

	got, err := store.Subscriptions().FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, got.Status,
		"ended trial awaits payment; capture activates it")
	assert.Nil(t, got.TrialEndsAt)
}

func TestGetExpiringSoon(t *testing.T) {
	store := seededStore()
	svc := service.NewSubscriptionService(store)
	ctx := context.Background()

	soon := time.Now().Add(3 * 24 * time.Hour)
	sub := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TarifPlanID: "plan-basic",
		Status:      model.SubscriptionStatusActive,
		ExpiresAt:   &soon,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &sub))

	far := time.Now().Add(60 * 24 * time.Hour)
	other := model.Subscription{
		ID:          uuid.NewString(),
		UserID:      "user-2",
		TarifPlanID: "plan-basic",
		Status:      model.SubscriptionStatusActive,
		ExpiresAt:   &far,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, &other))

	subs, err := svc.GetExpiringSoon(ctx, 7)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
}
