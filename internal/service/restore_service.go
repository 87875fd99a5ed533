package service

import (
	"context"
	"fmt"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
)

// RestoreSummary reports what a refund reversal brought back.
type RestoreSummary struct {
	InvoiceID      string   `json:"invoice_id"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	PurchaseIDs    []string `json:"purchase_ids,omitempty"`
	AddOnIDs       []string `json:"add_on_ids,omitempty"`
	TokensCredited int64    `json:"tokens_credited"`
}

// RestoreService undoes a refund after the provider reverses it: the
// invoice returns to PAID, the cancelled subscription gets a fresh
// activation window, and bundle tokens are re-credited at their nominal
// amount.
type RestoreService struct {
	store  repository.Store
	locker Locker
	topic  string
}

func NewRestoreService(store repository.Store, locker Locker, topic string) *RestoreService {
	return &RestoreService{store: store, locker: locker, topic: topic}
}

// Restore processes one refund-reversed event. Only REFUNDED invoices
// can be restored.
func (s *RestoreService) Restore(ctx context.Context, ev event.RefundReversed) (*RestoreSummary, error) {
	if ev.InvoiceID == "" {
		return nil, fmt.Errorf("invoice_id is required")
	}

	release, err := s.locker.AcquireInvoiceLock(ctx, ev.InvoiceID, "restore")
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var summary *RestoreSummary
	err = s.store.Atomic(ctx, func(st repository.Store) error {
		invoice, err := st.Invoices().FindByID(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != model.InvoiceStatusRefunded {
			return fmt.Errorf("%w: cannot restore: invoice status is %s, expected %s",
				repository.ErrInvoiceStatusInvalid, invoice.Status, model.InvoiceStatusRefunded)
		}

		invoice.Status = model.InvoiceStatusPaid
		if err := st.Invoices().Save(ctx, invoice); err != nil {
			return err
		}

		summary = &RestoreSummary{InvoiceID: invoice.ID}

		for i := range invoice.LineItems {
			item := &invoice.LineItems[i]
			switch item.ItemType {
			case model.LineItemTypeSubscription:
				if err := s.reactivateSubscription(ctx, st, item.ItemID, summary); err != nil {
					return err
				}
			case model.LineItemTypeTokenBundle:
				if err := s.restorePurchase(ctx, st, item.ItemID, invoice.ID, ev.Reason, summary); err != nil {
					return err
				}
			case model.LineItemTypeAddOn:
				if err := s.reactivateAddOn(ctx, st, item.ItemID, summary); err != nil {
					return err
				}
			}
		}

		return writeOutbox(ctx, st, s.topic, invoice.ID, ev)
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// reactivateSubscription gives a cancelled subscription a fresh window
// starting now rather than resuming the old expiry.
func (s *RestoreService) reactivateSubscription(ctx context.Context, st repository.Store, subscriptionID string, summary *RestoreSummary) error {
	sub, err := st.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionStatusCancelled {
		return nil
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

// restorePurchase re-completes a refunded purchase and credits the
// nominal bundle amount even when the refund only clawed back part of
// it.
func (s *RestoreService) restorePurchase(ctx context.Context, st repository.Store, purchaseID, invoiceID, reason string, summary *RestoreSummary) error {
	purchase, err := st.Purchases().FindByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase.Status != model.PurchaseStatusRefunded {
		return nil
	}

	purchase.Complete()
	if err := st.Purchases().Save(ctx, purchase); err != nil {
		return err
	}

	desc := fmt.Sprintf("Refund reversed: token bundle purchase %s", purchase.ID)
	if reason != "" {
		desc = fmt.Sprintf("%s (%s)", desc, reason)
	}
	if _, err := creditTokens(ctx, st, purchase.UserID, purchase.TokenAmount,
		model.TokenTransactionTypePurchase, &invoiceID, desc); err != nil {
		return err
	}

	summary.PurchaseIDs = append(summary.PurchaseIDs, purchase.ID)
	summary.TokensCredited += purchase.TokenAmount
	return nil
}

func (s *RestoreService) reactivateAddOn(ctx context.Context, st repository.Store, addOnSubID string, summary *RestoreSummary) error {
	addOnSub, err := st.AddOnSubscriptions().FindByID(ctx, addOnSubID)
	if err != nil {
		return err
	}
	if addOnSub.Status != model.SubscriptionStatusCancelled {
		return nil
	}
	addOnSub.Activate()
	if err := st.AddOnSubscriptions().Save(ctx, addOnSub); err != nil {
		return err
	}
	summary.AddOnIDs = append(summary.AddOnIDs, addOnSub.ID)
	return nil
}
