// Package memory provides an in-memory Store used by tests and local
// runs without a database. Atomic is a plain invocation: there is no
// rollback, which matches how the sagas are exercised in tests (a saga
// that fails mid-flight is asserted on its reported Result, not on
// partial writes).
package memory

import (
	"context"
	"sync"
	"time"

	"subbilling/internal/model"
	"subbilling/internal/repository"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.RWMutex

	invoices     map[string]model.Invoice
	lineItems    []model.InvoiceLineItem
	subs         map[string]model.Subscription
	plans        map[string]model.TarifPlan
	bundles      map[string]model.TokenBundle
	addons       map[string]model.AddOn
	purchases    map[string]model.TokenBundlePurchase
	addonSubs    map[string]model.AddOnSubscription
	balances     map[string]model.UserTokenBalance // keyed by user id
	transactions []model.TokenTransaction
	outbox       []model.OutboxMessage
	nextOutboxID int64
	nextItemID   int64
}

func NewStore() *Store {
	return &Store{
		invoices:  make(map[string]model.Invoice),
		subs:      make(map[string]model.Subscription),
		plans:     make(map[string]model.TarifPlan),
		bundles:   make(map[string]model.TokenBundle),
		addons:    make(map[string]model.AddOn),
		purchases: make(map[string]model.TokenBundlePurchase),
		addonSubs: make(map[string]model.AddOnSubscription),
		balances:  make(map[string]model.UserTokenBalance),
	}
}

// Seed helpers for catalog data.

func (s *Store) AddPlan(plan model.TarifPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = plan
}

func (s *Store) AddBundle(bundle model.TokenBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[bundle.ID] = bundle
}

func (s *Store) AddAddOn(addon model.AddOn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addons[addon.ID] = addon
}

// OutboxMessages returns a snapshot of everything written to the outbox.
func (s *Store) OutboxMessages() []model.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutboxMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func (s *Store) Invoices() repository.InvoiceRepository {
	return (*invoiceRepo)(s)
}

func (s *Store) Subscriptions() repository.SubscriptionRepository {
	return (*subscriptionRepo)(s)
}

func (s *Store) Catalog() repository.CatalogRepository {
	return (*catalogRepo)(s)
}

func (s *Store) Purchases() repository.PurchaseRepository {
	return (*purchaseRepo)(s)
}

func (s *Store) AddOnSubscriptions() repository.AddOnSubscriptionRepository {
	return (*addonSubRepo)(s)
}

func (s *Store) TokenBalances() repository.TokenBalanceRepository {
	return (*balanceRepo)(s)
}

func (s *Store) TokenTransactions() repository.TokenTransactionRepository {
	return (*transactionRepo)(s)
}

func (s *Store) Outbox() repository.OutboxRepository {
	return (*outboxRepo)(s)
}

func (s *Store) Atomic(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

type invoiceRepo Store

func (r *invoiceRepo) FindByID(_ context.Context, id string) (*model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	for _, item := range r.lineItems {
		if item.InvoiceID == id {
			invoice.LineItems = append(invoice.LineItems, item)
		}
	}
	return &invoice, nil
}

func (r *invoiceRepo) FindByProviderSessionID(_ context.Context, sessionID string) (*model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, invoice := range r.invoices {
		if invoice.ProviderSessionID == sessionID {
			for _, item := range r.lineItems {
				if item.InvoiceID == id {
					invoice.LineItems = append(invoice.LineItems, item)
				}
			}
			return &invoice, nil
		}
	}
	return nil, repository.ErrInvoiceNotFound
}

func (r *invoiceRepo) FindExpiredPending(_ context.Context, limit int) ([]*model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Invoice
	now := time.Now()
	for _, invoice := range r.invoices {
		if invoice.Status == model.InvoiceStatusPending &&
			invoice.ExpiresAt != nil && invoice.ExpiresAt.Before(now) {
			found := invoice
			out = append(out, &found)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *invoiceRepo) Create(_ context.Context, invoice *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *invoice
	stored.LineItems = nil
	r.invoices[invoice.ID] = stored
	return nil
}

func (r *invoiceRepo) Save(_ context.Context, invoice *model.Invoice) error {
	return r.Create(context.Background(), invoice)
}

func (r *invoiceRepo) CreateLineItem(_ context.Context, item *model.InvoiceLineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextItemID++
	item.ID = r.nextItemID
	r.lineItems = append(r.lineItems, *item)
	return nil
}

type subscriptionRepo Store

func (r *subscriptionRepo) FindByID(_ context.Context, id string) (*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (r *subscriptionRepo) FindActiveByUser(_ context.Context, userID string) (*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status == model.SubscriptionStatusActive {
			found := sub
			return &found, nil
		}
	}
	return nil, nil
}

func (r *subscriptionRepo) FindByUser(_ context.Context, userID string) ([]*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			found := sub
			out = append(out, &found)
		}
	}
	return out, nil
}

func (r *subscriptionRepo) FindByProviderSubscriptionID(_ context.Context, providerSubID string) (*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if sub.ProviderSubscriptionID == providerSubID {
			found := sub
			return &found, nil
		}
	}
	return nil, repository.ErrSubscriptionNotFound
}

func (r *subscriptionRepo) FindExpired(_ context.Context, limit int) ([]*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range r.subs {
		if sub.Status == model.SubscriptionStatusActive &&
			sub.ExpiresAt != nil && sub.ExpiresAt.Before(time.Now()) {
			found := sub
			out = append(out, &found)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *subscriptionRepo) FindEndedTrials(_ context.Context, before time.Time, limit int) ([]*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range r.subs {
		if sub.Status == model.SubscriptionStatusTrialing &&
			sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(before) {
			found := sub
			out = append(out, &found)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *subscriptionRepo) FindExpiringSoon(_ context.Context, within time.Duration) ([]*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscription
	now := time.Now()
	for _, sub := range r.subs {
		if sub.Status == model.SubscriptionStatusActive && sub.ExpiresAt != nil &&
			sub.ExpiresAt.After(now) && sub.ExpiresAt.Before(now.Add(within)) {
			found := sub
			out = append(out, &found)
		}
	}
	return out, nil
}

func (r *subscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = *sub
	return nil
}

func (r *subscriptionRepo) Save(_ context.Context, sub *model.Subscription) error {
	return r.Create(context.Background(), sub)
}

type catalogRepo Store

func (r *catalogRepo) FindPlanByID(_ context.Context, id string) (*model.TarifPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrPlanNotFound
	}
	return &plan, nil
}

func (r *catalogRepo) FindBundleByID(_ context.Context, id string) (*model.TokenBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bundle, ok := r.bundles[id]
	if !ok {
		return nil, repository.ErrBundleNotFound
	}
	return &bundle, nil
}

func (r *catalogRepo) FindAddOnByID(_ context.Context, id string) (*model.AddOn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addon, ok := r.addons[id]
	if !ok {
		return nil, repository.ErrAddOnNotFound
	}
	return &addon, nil
}

type purchaseRepo Store

func (r *purchaseRepo) FindByID(_ context.Context, id string) (*model.TokenBundlePurchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	purchase, ok := r.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	return &purchase, nil
}

func (r *purchaseRepo) Create(_ context.Context, purchase *model.TokenBundlePurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases[purchase.ID] = *purchase
	return nil
}

func (r *purchaseRepo) Save(_ context.Context, purchase *model.TokenBundlePurchase) error {
	return r.Create(context.Background(), purchase)
}

type addonSubRepo Store

func (r *addonSubRepo) FindByID(_ context.Context, id string) (*model.AddOnSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.addonSubs[id]
	if !ok {
		return nil, repository.ErrAddOnSubscriptionNotFound
	}
	return &sub, nil
}

func (r *addonSubRepo) FindBySubscription(_ context.Context, subscriptionID string) ([]*model.AddOnSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.AddOnSubscription
	for _, sub := range r.addonSubs {
		if sub.SubscriptionID != nil && *sub.SubscriptionID == subscriptionID {
			found := sub
			out = append(out, &found)
		}
	}
	return out, nil
}

func (r *addonSubRepo) Create(_ context.Context, sub *model.AddOnSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addonSubs[sub.ID] = *sub
	return nil
}

func (r *addonSubRepo) Save(_ context.Context, sub *model.AddOnSubscription) error {
	return r.Create(context.Background(), sub)
}

type balanceRepo Store

func (r *balanceRepo) FindByUserID(_ context.Context, userID string) (*model.UserTokenBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balance, ok := r.balances[userID]
	if !ok {
		return nil, nil
	}
	return &balance, nil
}

func (r *balanceRepo) GetOrCreate(_ context.Context, userID string) (*model.UserTokenBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if balance, ok := r.balances[userID]; ok {
		return &balance, nil
	}
	fresh := model.UserTokenBalance{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	r.balances[userID] = fresh
	return &fresh, nil
}

func (r *balanceRepo) Save(_ context.Context, balance *model.UserTokenBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[balance.UserID] = *balance
	return nil
}

type transactionRepo Store

func (r *transactionRepo) Create(_ context.Context, tx *model.TokenTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, *tx)
	return nil
}

func (r *transactionRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*model.TokenTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.TokenTransaction
	skipped := 0
	for i := len(r.transactions) - 1; i >= 0; i-- {
		tx := r.transactions[i]
		if tx.UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		found := tx
		out = append(out, &found)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type outboxRepo Store

func (r *outboxRepo) Create(_ context.Context, msg *model.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextOutboxID++
	msg.ID = r.nextOutboxID
	r.outbox = append(r.outbox, *msg)
	return nil
}

func (r *outboxRepo) GetPending(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.OutboxMessage
	for _, msg := range r.outbox {
		if msg.Status == model.OutboxStatusPending {
			found := msg
			out = append(out, &found)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].Status = status
		}
	}
	return nil
}

func (r *outboxRepo) IncrementRetryCount(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].RetryCount++
		}
	}
	return nil
}

func (r *outboxRepo) MarkAsFailed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].Status = model.OutboxStatusFailed
			r.outbox[i].RetryCount++
		}
	}
	return nil
}
