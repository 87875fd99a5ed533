package service

import (
	"context"
	"fmt"

	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/pkg/idgen"
)

// RefundSummary reports what the refund rolled back. TokensDebited is
// the amount actually clawed back, which can be less than the bundle
// size when the user already spent part of it.
type RefundSummary struct {
	InvoiceID      string   `json:"invoice_id"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	PurchaseIDs    []string `json:"purchase_ids,omitempty"`
	AddOnIDs       []string `json:"add_on_ids,omitempty"`
	TokensDebited  int64    `json:"tokens_debited"`
}

// RefundService compensates a captured payment: the invoice goes
// REFUNDED, the subscription and add-ons it paid for are cancelled, and
// bundle tokens are clawed back as far as the remaining balance allows.
type RefundService struct {
	store  repository.Store
	locker Locker
	topic  string
}

func NewRefundService(store repository.Store, locker Locker, topic string) *RefundService {
	return &RefundService{store: store, locker: locker, topic: topic}
}

// Refund processes one payment-refunded event. Only PAID invoices can be
// refunded; anything else is a hard error so a replayed refund of an
// already-refunded invoice surfaces instead of double-debiting.
func (s *RefundService) Refund(ctx context.Context, ev event.PaymentRefunded) (*RefundSummary, error) {
	if ev.InvoiceID == "" {
		return nil, fmt.Errorf("invoice_id is required")
	}

	release, err := s.locker.AcquireInvoiceLock(ctx, ev.InvoiceID, "refund")
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var summary *RefundSummary
	err = s.store.Atomic(ctx, func(st repository.Store) error {
		invoice, err := st.Invoices().FindByID(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != model.InvoiceStatusPaid {
			return fmt.Errorf("%w: cannot refund: invoice status is %s",
				repository.ErrInvoiceStatusInvalid, invoice.Status)
		}

		// Admin-triggered refunds carry no provider reference; mint one
		// so the refund is still traceable from the invoice.
		if ev.RefundReference == "" {
			ev.RefundReference = idgen.GenerateRefundNumber()
		}
		invoice.MarkRefunded()
		invoice.PaymentRef = ev.RefundReference
		if err := st.Invoices().Save(ctx, invoice); err != nil {
			return err
		}

		summary = &RefundSummary{InvoiceID: invoice.ID}

		for i := range invoice.LineItems {
			item := &invoice.LineItems[i]
			switch item.ItemType {
			case model.LineItemTypeSubscription:
				if err := s.cancelSubscription(ctx, st, item.ItemID, summary); err != nil {
					return err
				}
			case model.LineItemTypeTokenBundle:
				if err := s.refundPurchase(ctx, st, item.ItemID, invoice.ID, summary); err != nil {
					return err
				}
			case model.LineItemTypeAddOn:
				if err := s.cancelAddOn(ctx, st, item.ItemID, summary); err != nil {
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

func (s *RefundService) cancelSubscription(ctx context.Context, st repository.Store, subscriptionID string, summary *RefundSummary) error {
	sub, err := st.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil
	}
	sub.Cancel()
	if err := st.Subscriptions().Save(ctx, sub); err != nil {
		return err
	}
	summary.SubscriptionID = sub.ID
	return nil
}

// refundPurchase marks the purchase REFUNDED and claws back its tokens,
// clamped at the user's current balance so the balance never goes
// negative.
func (s *RefundService) refundPurchase(ctx context.Context, st repository.Store, purchaseID, invoiceID string, summary *RefundSummary) error {
	purchase, err := st.Purchases().FindByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase.Status != model.PurchaseStatusCompleted {
		return nil
	}

	purchase.Refund()
	if err := st.Purchases().Save(ctx, purchase); err != nil {
		return err
	}

	desc := fmt.Sprintf("Refund of token bundle purchase %s", purchase.ID)
	debited, err := refundTokens(ctx, st, purchase.UserID, purchase.TokenAmount, &invoiceID, desc)
	if err != nil {
		return err
	}

	summary.PurchaseIDs = append(summary.PurchaseIDs, purchase.ID)
	summary.TokensDebited += debited
	return nil
}

func (s *RefundService) cancelAddOn(ctx context.Context, st repository.Store, addOnSubID string, summary *RefundSummary) error {
	addOnSub, err := st.AddOnSubscriptions().FindByID(ctx, addOnSubID)
	if err != nil {
		return err
	}
	if addOnSub.Status != model.SubscriptionStatusActive {
		return nil
	}
	addOnSub.Cancel()
	if err := st.AddOnSubscriptions().Save(ctx, addOnSub); err != nil {
		return err
	}
	summary.AddOnIDs = append(summary.AddOnIDs, addOnSub.ID)
	return nil
}
