package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProrationResult is the daily-rate credit for unused time on the
// current plan against the new plan's price, floored at zero.
type ProrationResult struct {
	Credit        decimal.Decimal `json:"credit"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	DaysRemaining int             `json:"days_remaining"`
}

// SubscriptionService manages the subscription lifecycle outside the
// payment sagas: pause/resume, upgrade/downgrade, renewal, and the
// expiry sweeps.
type SubscriptionService struct {
	store repository.Store
}

func NewSubscriptionService(store repository.Store) *SubscriptionService {
	return &SubscriptionService{store: store}
}

// planPeriodDays resolves the activation window for a plan. A missing
// plan falls back to the monthly default; any other lookup error
// propagates so a transient failure cannot shorten a yearly activation
// to a month.
func planPeriodDays(ctx context.Context, st repository.Store, planID string) (int, error) {
	plan, err := st.Catalog().FindPlanByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return model.PeriodDaysFor(""), nil
		}
		return 0, err
	}
	return model.PeriodDaysFor(plan.BillingPeriod), nil
}

func (s *SubscriptionService) GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	return s.store.Subscriptions().FindActiveByUser(ctx, userID)
}

func (s *SubscriptionService) GetUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return s.store.Subscriptions().FindByUser(ctx, userID)
}

// CreateSubscription creates a PENDING enrollment after validating the
// plan. The checkout saga is the usual caller.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	plan, err := s.store.Catalog().FindPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("plan %s is not active", planID)
	}

	sub := &model.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		TarifPlanID: planID,
		Status:      model.SubscriptionStatusPending,
	}
	if err := s.store.Subscriptions().Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ActivateSubscription activates a PENDING subscription with the plan's
// billing-period duration. TRIALING subscriptions are rejected: trials
// convert only through the capture saga or the trial-expiry sweep.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var err error
		sub, err = st.Subscriptions().FindByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == model.SubscriptionStatusTrialing {
			return fmt.Errorf("cannot activate a trialing subscription directly")
		}

		days, err := planPeriodDays(ctx, st, sub.TarifPlanID)
		if err != nil {
			return err
		}
		sub.Activate(days)
		return st.Subscriptions().Save(ctx, sub)
	})
	return sub, err
}

func (s *SubscriptionService) CancelSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	sub.Cancel()
	if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RenewSubscription re-activates an expired subscription with a fresh
// window, applying a pending downgrade if one is queued.
func (s *SubscriptionService) RenewSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var err error
		sub, err = st.Subscriptions().FindByID(ctx, subscriptionID)
		if err != nil {
			return err
		}

		if sub.PendingPlanID != nil {
			sub.TarifPlanID = *sub.PendingPlanID
			sub.PendingPlanID = nil
		}

		days, err := planPeriodDays(ctx, st, sub.TarifPlanID)
		if err != nil {
			return err
		}
		sub.Activate(days)
		return st.Subscriptions().Save(ctx, sub)
	})
	return sub, err
}

func (s *SubscriptionService) PauseSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionStatusPaused {
		return nil, fmt.Errorf("subscription is already paused")
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, fmt.Errorf("only active subscriptions can be paused")
	}
	sub.Pause()
	if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ResumeSubscription restarts the expiry clock, extending expires_at by
// the paused duration.
func (s *SubscriptionService) ResumeSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusPaused {
		return nil, fmt.Errorf("subscription is not paused")
	}
	sub.Resume()
	if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// UpgradeSubscription swaps the plan immediately on an active
// subscription. Billing the difference is the caller's concern.
func (s *SubscriptionService) UpgradeSubscription(ctx context.Context, subscriptionID, newPlanID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.TarifPlanID == newPlanID {
		return nil, fmt.Errorf("already subscribed to this plan")
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, fmt.Errorf("only active subscriptions can be upgraded")
	}
	if _, err := s.store.Catalog().FindPlanByID(ctx, newPlanID); err != nil {
		return nil, err
	}

	sub.TarifPlanID = newPlanID
	sub.PendingPlanID = nil
	if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DowngradeSubscription queues a plan change that takes effect at the
// next renewal, not immediately.
func (s *SubscriptionService) DowngradeSubscription(ctx context.Context, subscriptionID, newPlanID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.TarifPlanID == newPlanID {
		return nil, fmt.Errorf("already subscribed to this plan")
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, fmt.Errorf("only active subscriptions can be downgraded")
	}
	if _, err := s.store.Catalog().FindPlanByID(ctx, newPlanID); err != nil {
		return nil, err
	}

	sub.PendingPlanID = &newPlanID
	if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CalculateProration computes the credit for unused days on the current
// plan and the amount due on the new one, both at cents precision.
func (s *SubscriptionService) CalculateProration(ctx context.Context, subscriptionID, newPlanID string) (*ProrationResult, error) {
	sub, err := s.store.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.ExpiresAt == nil {
		return nil, fmt.Errorf("subscription has no expiry to prorate against")
	}

	currentPlan, err := s.store.Catalog().FindPlanByID(ctx, sub.TarifPlanID)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.store.Catalog().FindPlanByID(ctx, newPlanID)
	if err != nil {
		return nil, err
	}

	daysRemaining := int(time.Until(*sub.ExpiresAt).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	totalDays := model.PeriodDaysFor(currentPlan.BillingPeriod)

	dailyRate := currentPlan.Price.Div(decimal.NewFromInt(int64(totalDays)))
	credit := dailyRate.Mul(decimal.NewFromInt(int64(daysRemaining))).Round(2)

	amountDue := newPlan.Price.Sub(credit)
	if amountDue.IsNegative() {
		amountDue = decimal.Zero
	}

	return &ProrationResult{
		Credit:        credit,
		AmountDue:     amountDue.Round(2),
		DaysRemaining: daysRemaining,
	}, nil
}

func (s *SubscriptionService) GetExpiringSoon(ctx context.Context, days int) ([]*model.Subscription, error) {
	return s.store.Subscriptions().FindExpiringSoon(ctx, time.Duration(days)*24*time.Hour)
}

// ExpireSubscriptions marks active subscriptions whose window has run
// out as EXPIRED. Returns the ids swept.
func (s *SubscriptionService) ExpireSubscriptions(ctx context.Context, limit int) ([]string, error) {
	expired, err := s.store.Subscriptions().FindExpired(ctx, limit)
	if err != nil {
		return nil, err
	}

	var swept []string
	for _, sub := range expired {
		sub.Expire()
		if err := s.store.Subscriptions().Save(ctx, sub); err != nil {
			log.Printf("[SubscriptionService] expire failed: subscription=%s err=%v", sub.ID, err)
			continue
		}
		swept = append(swept, sub.ID)
	}
	return swept, nil
}

// ExpireTrials moves ended trials to PENDING and creates the renewal
// invoice awaiting payment. A captured renewal invoice activates the
// subscription through the normal capture path; trials never convert by
// direct activation.
func (s *SubscriptionService) ExpireTrials(ctx context.Context, limit int) ([]string, error) {
	ended, err := s.store.Subscriptions().FindEndedTrials(ctx, time.Now(), limit)
	if err != nil {
		return nil, err
	}

	var swept []string
	for _, sub := range ended {
		subID := sub.ID
		err := s.store.Atomic(ctx, func(st repository.Store) error {
			sub, err := st.Subscriptions().FindByID(ctx, subID)
			if err != nil {
				return err
			}
			if sub.Status != model.SubscriptionStatusTrialing {
				return nil // raced another sweep
			}

			plan, err := st.Catalog().FindPlanByID(ctx, sub.TarifPlanID)
			if err != nil {
				return err
			}

			sub.Status = model.SubscriptionStatusPending
			sub.TrialEndsAt = nil
			if err := st.Subscriptions().Save(ctx, sub); err != nil {
				return err
			}

			invoice := &model.Invoice{
				ID:             uuid.NewString(),
				UserID:         sub.UserID,
				TarifPlanID:    &sub.TarifPlanID,
				SubscriptionID: &sub.ID,
				InvoiceNumber:  idgen.GenerateInvoiceNumber(),
				Amount:         plan.Price,
				Subtotal:       plan.Price,
				TotalAmount:    plan.Price,
				Currency:       "EUR",
				Status:         model.InvoiceStatusPending,
				InvoicedAt:     time.Now(),
			}
			if err := st.Invoices().Create(ctx, invoice); err != nil {
				return err
			}
			item := &model.InvoiceLineItem{
				InvoiceID:   invoice.ID,
				ItemType:    model.LineItemTypeSubscription,
				ItemID:      sub.ID,
				Description: plan.Name,
				Quantity:    1,
				UnitPrice:   plan.Price,
				TotalPrice:  plan.Price,
			}
			return st.Invoices().CreateLineItem(ctx, item)
		})
		if err != nil {
			log.Printf("[SubscriptionService] trial sweep failed: subscription=%s err=%v", subID, err)
			continue
		}
		swept = append(swept, subID)
	}
	return swept, nil
}
