package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
)

// CaptureSummary reports what a capture activated. On idempotent replays
// the slices stay empty: everything was already active.
type CaptureSummary struct {
	InvoiceID      string   `json:"invoice_id"`
	AlreadyPaid    bool     `json:"already_paid"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	TokenBundleIDs []string `json:"token_bundle_ids,omitempty"`
	AddOnIDs       []string `json:"add_on_ids,omitempty"`
	TokensCredited int64    `json:"tokens_credited"`
}

// CaptureService applies a payment-captured notification: marks the
// invoice PAID and activates each PENDING line item. Webhooks arrive at
// least once, so every step guards on current status and a replay is a
// no-op.
type CaptureService struct {
	store  repository.Store
	locker Locker
	topic  string
}

func NewCaptureService(store repository.Store, locker Locker, topic string) *CaptureService {
	return &CaptureService{store: store, locker: locker, topic: topic}
}

// Capture processes one payment-captured event. The invoice lock keeps
// two concurrent deliveries of the same webhook from racing each other;
// the status guards keep sequential replays harmless.
func (s *CaptureService) Capture(ctx context.Context, ev event.PaymentCaptured) (*CaptureSummary, error) {
	if ev.InvoiceID == "" {
		return nil, fmt.Errorf("invoice_id is required")
	}

	release, err := s.locker.AcquireInvoiceLock(ctx, ev.InvoiceID, "capture")
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var summary *CaptureSummary
	err = s.store.Atomic(ctx, func(st repository.Store) error {
		invoice, err := st.Invoices().FindByID(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}

		summary = &CaptureSummary{InvoiceID: invoice.ID}

		firstApplication := invoice.Status != model.InvoiceStatusPaid
		if firstApplication {
			if !model.InvoiceCanTransition(invoice.Status, model.InvoiceStatusPaid) {
				return fmt.Errorf("%w: cannot capture invoice in status %s",
					repository.ErrInvoiceStatusInvalid, invoice.Status)
			}
			invoice.MarkPaid(ev.PaymentReference)
			if ev.TransactionID != "" {
				invoice.ProviderSessionID = ev.TransactionID
			}
			if err := st.Invoices().Save(ctx, invoice); err != nil {
				return err
			}
		} else {
			summary.AlreadyPaid = true
		}

		for i := range invoice.LineItems {
			item := &invoice.LineItems[i]
			switch item.ItemType {
			case model.LineItemTypeSubscription:
				if err := s.activateSubscription(ctx, st, item.ItemID, summary); err != nil {
					return err
				}
			case model.LineItemTypeTokenBundle:
				if err := s.completePurchase(ctx, st, item.ItemID, invoice.ID, summary); err != nil {
					return err
				}
			case model.LineItemTypeAddOn:
				if err := s.activateAddOn(ctx, st, item.ItemID, summary); err != nil {
					return err
				}
			default:
				log.Printf("[CaptureService] unknown line item type: invoice=%s type=%s", invoice.ID, item.ItemType)
			}
		}

		if firstApplication {
			return writeOutbox(ctx, st, s.topic, invoice.ID, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// activateSubscription activates a PENDING subscription for the plan's
// billing period, cancelling any other active subscription the user has
// first. Non-PENDING subscriptions are left alone: a replay must not
// reset the expiry clock, and trials keep trialing.
func (s *CaptureService) activateSubscription(ctx context.Context, st repository.Store, subscriptionID string, summary *CaptureSummary) error {
	sub, err := st.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionStatusPending {
		return nil
	}

	current, err := st.Subscriptions().FindActiveByUser(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if current != nil && current.ID != sub.ID {
		current.Cancel()
		if err := st.Subscriptions().Save(ctx, current); err != nil {
			return err
		}
	}

	days, err := planPeriodDays(ctx, st, sub.TarifPlanID)
	if err != nil {
		return err
	}
	sub.Activate(days)
	if err := st.Subscriptions().Save(ctx, sub); err != nil {
		return err
	}
	summary.SubscriptionID = sub.ID
	return nil
}

func (s *CaptureService) completePurchase(ctx context.Context, st repository.Store, purchaseID, invoiceID string, summary *CaptureSummary) error {
	purchase, err := st.Purchases().FindByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase.Status != model.PurchaseStatusPending {
		return nil
	}

	purchase.Complete()
	if err := st.Purchases().Save(ctx, purchase); err != nil {
		return err
	}

	desc := fmt.Sprintf("Token bundle purchase %s", purchase.ID)
	if _, err := creditTokens(ctx, st, purchase.UserID, purchase.TokenAmount,
		model.TokenTransactionTypePurchase, &invoiceID, desc); err != nil {
		return err
	}

	summary.TokenBundleIDs = append(summary.TokenBundleIDs, purchase.ID)
	summary.TokensCredited += purchase.TokenAmount
	return nil
}

func (s *CaptureService) activateAddOn(ctx context.Context, st repository.Store, addOnSubID string, summary *CaptureSummary) error {
	addOnSub, err := st.AddOnSubscriptions().FindByID(ctx, addOnSubID)
	if err != nil {
		return err
	}
	if addOnSub.Status != model.SubscriptionStatusPending {
		return nil
	}

	addOnSub.Activate()
	if err := st.AddOnSubscriptions().Save(ctx, addOnSub); err != nil {
		return err
	}
	summary.AddOnIDs = append(summary.AddOnIDs, addOnSub.ID)
	return nil
}

// writeOutbox queues a domain notification inside the saga's
// transaction. The background sender publishes it to Kafka after commit.
func writeOutbox(ctx context.Context, st repository.Store, topic, key string, ev event.Event) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event":       ev.Name(),
		"occurred_at": ev.OccurredAt(),
		"data":        ev,
	})
	if err != nil {
		return err
	}
	return st.Outbox().Create(ctx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
