package service

import (
	"context"
	"fmt"
	"time"

	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutInput is one checkout request: at most one plan plus any
// number of token bundles and add-ons, all billed on a single invoice.
type CheckoutInput struct {
	UserID            string   `json:"user_id" binding:"required"`
	PlanID            string   `json:"plan_id"`
	TokenBundleIDs    []string `json:"token_bundle_ids"`
	AddOnIDs          []string `json:"add_on_ids"`
	Currency          string   `json:"currency"`
	PaymentMethodCode string   `json:"payment_method_code"`
}

// CheckoutSummary reports what the saga created. SubscriptionID is empty
// when no plan was requested.
type CheckoutSummary struct {
	InvoiceID      string          `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Trialing       bool            `json:"trialing,omitempty"`
	PurchaseIDs    []string        `json:"purchase_ids,omitempty"`
	AddOnIDs       []string        `json:"add_on_ids,omitempty"`
	LineItems      int             `json:"line_items"`
}

// CheckoutService builds the pending order graph for a checkout request:
// one PENDING invoice with a line item per purchased thing, a PENDING (or
// TRIALING) subscription, PENDING bundle purchases and add-on
// enrollments. Nothing is activated here; activation belongs to the
// capture saga.
type CheckoutService struct {
	store         repository.Store
	invoiceExpiry time.Duration
}

func NewCheckoutService(store repository.Store, invoiceExpiry time.Duration) *CheckoutService {
	return &CheckoutService{store: store, invoiceExpiry: invoiceExpiry}
}

// Checkout runs the whole saga in one transaction so a validation
// failure on the last add-on leaves no orphan records behind.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutSummary, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if in.PlanID == "" && len(in.TokenBundleIDs) == 0 && len(in.AddOnIDs) == 0 {
		return nil, fmt.Errorf("nothing to check out")
	}
	currency := in.Currency
	if currency == "" {
		currency = "EUR"
	}

	var summary *CheckoutSummary
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var (
			lineItems []*model.InvoiceLineItem
			sub       *model.Subscription
			purchases []*model.TokenBundlePurchase
			addOnSubs []*model.AddOnSubscription
			trialing  bool
		)

		if in.PlanID != "" {
			plan, err := st.Catalog().FindPlanByID(ctx, in.PlanID)
			if err != nil {
				return err
			}
			if !plan.IsActive {
				return fmt.Errorf("plan %s is not active", in.PlanID)
			}

			sub = &model.Subscription{
				ID:          uuid.NewString(),
				UserID:      in.UserID,
				TarifPlanID: plan.ID,
				Status:      model.SubscriptionStatusPending,
			}
			if plan.TrialDays > 0 {
				sub.StartTrial(plan.TrialDays)
				trialing = true
			}
			if err := st.Subscriptions().Create(ctx, sub); err != nil {
				return err
			}

			// Trials are invoice-free for the plan itself; the renewal
			// invoice comes from the trial-expiry sweep.
			if !trialing {
				lineItems = append(lineItems, &model.InvoiceLineItem{
					ItemType:    model.LineItemTypeSubscription,
					ItemID:      sub.ID,
					Description: plan.Name,
					Quantity:    1,
					UnitPrice:   plan.Price,
					TotalPrice:  plan.Price,
				})
			}
		}

		for _, bundleID := range in.TokenBundleIDs {
			bundle, err := st.Catalog().FindBundleByID(ctx, bundleID)
			if err != nil {
				return err
			}
			if !bundle.IsActive {
				return fmt.Errorf("token bundle %s is not active", bundleID)
			}

			purchase := &model.TokenBundlePurchase{
				ID:          uuid.NewString(),
				UserID:      in.UserID,
				BundleID:    bundle.ID,
				Status:      model.PurchaseStatusPending,
				TokenAmount: bundle.TokenAmount,
				Price:       bundle.Price,
			}
			if err := st.Purchases().Create(ctx, purchase); err != nil {
				return err
			}
			purchases = append(purchases, purchase)

			lineItems = append(lineItems, &model.InvoiceLineItem{
				ItemType:    model.LineItemTypeTokenBundle,
				ItemID:      purchase.ID,
				Description: bundle.Name,
				Quantity:    1,
				UnitPrice:   bundle.Price,
				TotalPrice:  bundle.Price,
			})
		}

		for _, addOnID := range in.AddOnIDs {
			addOn, err := st.Catalog().FindAddOnByID(ctx, addOnID)
			if err != nil {
				return err
			}
			if !addOn.IsActive {
				return fmt.Errorf("add-on %s is not active", addOnID)
			}

			addOnSub := &model.AddOnSubscription{
				ID:      uuid.NewString(),
				UserID:  in.UserID,
				AddOnID: addOn.ID,
				Status:  model.SubscriptionStatusPending,
			}
			if sub != nil {
				addOnSub.SubscriptionID = &sub.ID
			}
			if err := st.AddOnSubscriptions().Create(ctx, addOnSub); err != nil {
				return err
			}
			addOnSubs = append(addOnSubs, addOnSub)

			lineItems = append(lineItems, &model.InvoiceLineItem{
				ItemType:    model.LineItemTypeAddOn,
				ItemID:      addOnSub.ID,
				Description: addOn.Name,
				Quantity:    1,
				UnitPrice:   addOn.Price,
				TotalPrice:  addOn.Price,
			})
		}

		total := decimal.Zero
		for _, item := range lineItems {
			total = total.Add(item.TotalPrice)
		}

		invoice := &model.Invoice{
			ID:            uuid.NewString(),
			UserID:        in.UserID,
			InvoiceNumber: idgen.GenerateInvoiceNumber(),
			Amount:        total,
			Subtotal:      total,
			TotalAmount:   total,
			Currency:      currency,
			Status:        model.InvoiceStatusPending,
			PaymentMethod: in.PaymentMethodCode,
			InvoicedAt:    time.Now(),
		}
		if in.PlanID != "" {
			invoice.TarifPlanID = &in.PlanID
		}
		if sub != nil {
			invoice.SubscriptionID = &sub.ID
		}
		if s.invoiceExpiry > 0 {
			expires := time.Now().Add(s.invoiceExpiry)
			invoice.ExpiresAt = &expires
		}
		if err := st.Invoices().Create(ctx, invoice); err != nil {
			return err
		}

		for _, item := range lineItems {
			item.InvoiceID = invoice.ID
			if err := st.Invoices().CreateLineItem(ctx, item); err != nil {
				return err
			}
		}

		// Backfill the invoice link so refund/restore can walk from the
		// invoice to every record it paid for.
		for _, p := range purchases {
			p.InvoiceID = &invoice.ID
			if err := st.Purchases().Save(ctx, p); err != nil {
				return err
			}
		}
		for _, a := range addOnSubs {
			a.InvoiceID = &invoice.ID
			if err := st.AddOnSubscriptions().Save(ctx, a); err != nil {
				return err
			}
		}

		summary = &CheckoutSummary{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			TotalAmount:   invoice.TotalAmount,
			Currency:      invoice.Currency,
			Trialing:      trialing,
			LineItems:     len(lineItems),
		}
		if sub != nil {
			summary.SubscriptionID = sub.ID
		}
		for _, p := range purchases {
			summary.PurchaseIDs = append(summary.PurchaseIDs, p.ID)
		}
		for _, a := range addOnSubs {
			summary.AddOnIDs = append(summary.AddOnIDs, a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
