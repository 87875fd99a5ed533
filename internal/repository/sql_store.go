package repository

import (
	"context"

	"gorm.io/gorm"
)

// SQLStore is the gorm-backed Store. NewSQLStore binds every repository
// to the given db handle, so a store built over a transaction keeps all
// repository calls inside that transaction.
type SQLStore struct {
	db                *gorm.DB
	invoices          *InvoiceRepo
	subscriptions     *SubscriptionRepo
	catalog           *CatalogRepo
	purchases         *PurchaseRepo
	addonSubs         *AddOnSubscriptionRepo
	tokenBalances     *TokenBalanceRepo
	tokenTransactions *TokenTransactionRepo
	outbox            *OutboxRepo
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{
		db:                db,
		invoices:          &InvoiceRepo{db: db},
		subscriptions:     &SubscriptionRepo{db: db},
		catalog:           &CatalogRepo{db: db},
		purchases:         &PurchaseRepo{db: db},
		addonSubs:         &AddOnSubscriptionRepo{db: db},
		tokenBalances:     &TokenBalanceRepo{db: db},
		tokenTransactions: &TokenTransactionRepo{db: db},
		outbox:            &OutboxRepo{db: db},
	}
}

func (s *SQLStore) Invoices() InvoiceRepository {
	return s.invoices
}

func (s *SQLStore) Subscriptions() SubscriptionRepository {
	return s.subscriptions
}

func (s *SQLStore) Catalog() CatalogRepository {
	return s.catalog
}

func (s *SQLStore) Purchases() PurchaseRepository {
	return s.purchases
}

func (s *SQLStore) AddOnSubscriptions() AddOnSubscriptionRepository {
	return s.addonSubs
}

func (s *SQLStore) TokenBalances() TokenBalanceRepository {
	return s.tokenBalances
}

func (s *SQLStore) TokenTransactions() TokenTransactionRepository {
	return s.tokenTransactions
}

func (s *SQLStore) Outbox() OutboxRepository {
	return s.outbox
}

// Atomic runs fn inside one database transaction. The store handed to
// fn is bound to the transaction; returning an error rolls back.
func (s *SQLStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSQLStore(tx))
	})
}
