package service

import (
	"context"
	"encoding/json"
	"log"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
)

// RegisterHandlers wires every saga into the dispatcher. Called once at
// startup.
func RegisterHandlers(
	d *event.Dispatcher,
	checkout *CheckoutService,
	capture *CaptureService,
	refund *RefundService,
	restore *RestoreService,
	store repository.Store,
	topic string,
) {
	d.Register(event.NameCheckoutRequested, CheckoutRequestedHandler(checkout))
	d.Register(event.NamePaymentCaptured, PaymentCapturedHandler(capture))
	d.Register(event.NamePaymentRefunded, PaymentRefundedHandler(refund))
	d.Register(event.NameRefundReversed, RefundReversedHandler(restore))
	d.Register(event.NameSubscriptionCancelled, SubscriptionCancelledHandler(store))
	d.Register(event.NamePaymentFailed, PaymentFailedHandler(store, topic))
}

func CheckoutRequestedHandler(svc *CheckoutService) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.CheckoutRequested)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		summary, err := svc.Checkout(ctx, CheckoutInput{
			UserID:            ev.UserID,
			PlanID:            ev.PlanID,
			TokenBundleIDs:    ev.TokenBundleIDs,
			AddOnIDs:          ev.AddOnIDs,
			Currency:          ev.Currency,
			PaymentMethodCode: ev.PaymentMethodCode,
		})
		if err != nil {
			return event.ErrorResult("checkout failed: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"invoice_id":      summary.InvoiceID,
			"invoice_number":  summary.InvoiceNumber,
			"total_amount":    summary.TotalAmount.String(),
			"subscription_id": summary.SubscriptionID,
			"trialing":        summary.Trialing,
		})
	})
}

func PaymentCapturedHandler(svc *CaptureService) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.PaymentCaptured)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		summary, err := svc.Capture(ctx, ev)
		if err != nil {
			return event.ErrorResult("capture failed: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"invoice_id":      summary.InvoiceID,
			"already_paid":    summary.AlreadyPaid,
			"subscription_id": summary.SubscriptionID,
			"tokens_credited": summary.TokensCredited,
		})
	})
}

func PaymentRefundedHandler(svc *RefundService) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.PaymentRefunded)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		summary, err := svc.Refund(ctx, ev)
		if err != nil {
			return event.ErrorResult("refund failed: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"invoice_id":     summary.InvoiceID,
			"tokens_debited": summary.TokensDebited,
		})
	})
}

func RefundReversedHandler(svc *RestoreService) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.RefundReversed)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		summary, err := svc.Restore(ctx, ev)
		if err != nil {
			return event.ErrorResult("restore failed: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"invoice_id":      summary.InvoiceID,
			"subscription_id": summary.SubscriptionID,
			"tokens_credited": summary.TokensCredited,
		})
	})
}

// SubscriptionCancelledHandler applies a provider-side cancellation:
// the subscription and its linked active add-ons go CANCELLED. Replays
// find everything already cancelled and succeed without writes.
func SubscriptionCancelledHandler(store repository.Store) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.SubscriptionCancelled)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		if ev.SubscriptionID == "" {
			return event.ErrorResult("subscription_id is required")
		}

		err := store.Atomic(ctx, func(st repository.Store) error {
			sub, err := st.Subscriptions().FindByID(ctx, ev.SubscriptionID)
			if err != nil {
				return err
			}
			if sub.Status == model.SubscriptionStatusCancelled {
				return nil
			}
			sub.Cancel()
			if err := st.Subscriptions().Save(ctx, sub); err != nil {
				return err
			}

			addOns, err := st.AddOnSubscriptions().FindBySubscription(ctx, sub.ID)
			if err != nil {
				return err
			}
			for _, a := range addOns {
				if a.Status != model.SubscriptionStatusActive {
					continue
				}
				a.Cancel()
				if err := st.AddOnSubscriptions().Save(ctx, a); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return event.ErrorResult("cancel failed: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"subscription_id": ev.SubscriptionID,
		})
	})
}

// PaymentFailedHandler records the failure for downstream consumers
// (dunning, notifications) without touching billing state; the provider
// retries the charge on its own schedule.
func PaymentFailedHandler(store repository.Store, topic string) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, e event.Event) event.Result {
		ev, ok := e.(event.PaymentFailed)
		if !ok {
			return event.ErrorResult("unexpected payload for %s", e.Name())
		}
		log.Printf("[PaymentFailed] subscription=%s user=%s code=%s: %s",
			ev.SubscriptionID, ev.UserID, ev.ErrorCode, ev.ErrorMessage)

		payload, err := json.Marshal(map[string]interface{}{
			"event":       ev.Name(),
			"occurred_at": ev.OccurredAt(),
			"data":        ev,
		})
		if err != nil {
			return event.ErrorResult("payment failure not recorded: %v", err)
		}
		key := ev.SubscriptionID
		if key == "" {
			key = ev.UserID
		}
		msg := &model.OutboxMessage{
			MessageKey: key,
			Topic:      topic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := store.Outbox().Create(ctx, msg); err != nil {
			return event.ErrorResult("payment failure not recorded: %v", err)
		}
		return event.SuccessResult(map[string]interface{}{
			"subscription_id": ev.SubscriptionID,
			"recorded":        true,
		})
	})
}
