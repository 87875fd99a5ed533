package repository

import (
	"context"
	"errors"
	"time"

	"subbilling/internal/model"
)

var (
	ErrInvoiceNotFound           = errors.New("invoice not found")
	ErrInvoiceStatusInvalid      = errors.New("invoice status transition not allowed")
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrPlanNotFound              = errors.New("plan not found")
	ErrBundleNotFound            = errors.New("token bundle not found")
	ErrAddOnNotFound             = errors.New("add-on not found")
	ErrPurchaseNotFound          = errors.New("token bundle purchase not found")
	ErrAddOnSubscriptionNotFound = errors.New("add-on subscription not found")
)

// InvoiceRepository persists invoices and their line items. FindByID
// loads line items with the invoice; line items are written once and
// never updated.
type InvoiceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Invoice, error)
	FindByProviderSessionID(ctx context.Context, sessionID string) (*model.Invoice, error)
	// FindExpiredPending returns PENDING invoices whose expires_at has
	// passed, for the stale-invoice sweep.
	FindExpiredPending(ctx context.Context, limit int) ([]*model.Invoice, error)
	Create(ctx context.Context, invoice *model.Invoice) error
	Save(ctx context.Context, invoice *model.Invoice) error
	CreateLineItem(ctx context.Context, item *model.InvoiceLineItem) error
}

type SubscriptionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	// FindActiveByUser returns (nil, nil) when the user has no active
	// subscription.
	FindActiveByUser(ctx context.Context, userID string) (*model.Subscription, error)
	FindByUser(ctx context.Context, userID string) ([]*model.Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, providerSubID string) (*model.Subscription, error)
	// FindExpired returns ACTIVE subscriptions whose expiry clock has
	// run out.
	FindExpired(ctx context.Context, limit int) ([]*model.Subscription, error)
	// FindEndedTrials returns TRIALING subscriptions whose trial ended
	// before the given time.
	FindEndedTrials(ctx context.Context, before time.Time, limit int) ([]*model.Subscription, error)
	FindExpiringSoon(ctx context.Context, within time.Duration) ([]*model.Subscription, error)
	Create(ctx context.Context, sub *model.Subscription) error
	Save(ctx context.Context, sub *model.Subscription) error
}

// CatalogRepository is the read-only lookup surface for priced catalog
// items. Admin CRUD for the catalog lives outside this service.
type CatalogRepository interface {
	FindPlanByID(ctx context.Context, id string) (*model.TarifPlan, error)
	FindBundleByID(ctx context.Context, id string) (*model.TokenBundle, error)
	FindAddOnByID(ctx context.Context, id string) (*model.AddOn, error)
}

type PurchaseRepository interface {
	FindByID(ctx context.Context, id string) (*model.TokenBundlePurchase, error)
	Create(ctx context.Context, purchase *model.TokenBundlePurchase) error
	Save(ctx context.Context, purchase *model.TokenBundlePurchase) error
}

type AddOnSubscriptionRepository interface {
	FindByID(ctx context.Context, id string) (*model.AddOnSubscription, error)
	FindBySubscription(ctx context.Context, subscriptionID string) ([]*model.AddOnSubscription, error)
	Create(ctx context.Context, sub *model.AddOnSubscription) error
	Save(ctx context.Context, sub *model.AddOnSubscription) error
}

type TokenBalanceRepository interface {
	// FindByUserID returns (nil, nil) when the user has no balance row
	// yet.
	FindByUserID(ctx context.Context, userID string) (*model.UserTokenBalance, error)
	GetOrCreate(ctx context.Context, userID string) (*model.UserTokenBalance, error)
	Save(ctx context.Context, balance *model.UserTokenBalance) error
}

type TokenTransactionRepository interface {
	Create(ctx context.Context, tx *model.TokenTransaction) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.TokenTransaction, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Store bundles the repositories behind one handle. Atomic runs fn
// against a store bound to a single transaction: every repository call
// inside fn shares the unit of work, and an error rolls the whole saga
// step back.
type Store interface {
	Invoices() InvoiceRepository
	Subscriptions() SubscriptionRepository
	Catalog() CatalogRepository
	Purchases() PurchaseRepository
	AddOnSubscriptions() AddOnSubscriptionRepository
	TokenBalances() TokenBalanceRepository
	TokenTransactions() TokenTransactionRepository
	Outbox() OutboxRepository
	Atomic(ctx context.Context, fn func(Store) error) error
}
