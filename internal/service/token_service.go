package service

import (
	"context"
	"errors"
	"fmt"

	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/pkg/idgen"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient token balance")
)

// TokenService mutates the per-user token balance. Every balance change
// writes a ledger row in the same unit of work; the ledger is
// append-only and is the reconciliation source of truth.
type TokenService struct {
	store repository.Store
}

func NewTokenService(store repository.Store) *TokenService {
	return &TokenService{store: store}
}

func (s *TokenService) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.TokenBalances().FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.Balance, nil
}

func (s *TokenService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*model.TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.TokenTransactions().ListByUser(ctx, userID, limit, offset)
}

// Credit adds tokens to the user's balance, creating it on first use.
func (s *TokenService) Credit(ctx context.Context, userID string, amount int64, txType string, referenceID *string, description string) (*model.UserTokenBalance, error) {
	var balance *model.UserTokenBalance
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var err error
		balance, err = creditTokens(ctx, st, userID, amount, txType, referenceID, description)
		return err
	})
	return balance, err
}

// Debit removes tokens; insufficient balance is a hard error everywhere
// except the refund saga's clamped debit.
func (s *TokenService) Debit(ctx context.Context, userID string, amount int64, txType string, referenceID *string, description string) (*model.UserTokenBalance, error) {
	var balance *model.UserTokenBalance
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var err error
		balance, err = debitTokens(ctx, st, userID, amount, txType, referenceID, description)
		return err
	})
	return balance, err
}

// RefundTokens is the clamped debit used by the refund saga: the user
// may have spent part of the bundle already, so the debit is reduced to
// whatever is available. Returns the amount actually debited.
func (s *TokenService) RefundTokens(ctx context.Context, userID string, amount int64, referenceID *string, description string) (int64, error) {
	var actual int64
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		var err error
		actual, err = refundTokens(ctx, st, userID, amount, referenceID, description)
		return err
	})
	return actual, err
}

// The helpers below operate on a caller-supplied store so the sagas can
// run them inside their own transaction.

func creditTokens(ctx context.Context, st repository.Store, userID string, amount int64, txType string, referenceID *string, description string) (*model.UserTokenBalance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := st.TokenBalances().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create balance: %w", err)
	}
	balance.Balance += amount
	if err := st.TokenBalances().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}

	if err := appendLedger(ctx, st, userID, amount, txType, referenceID, description); err != nil {
		return nil, err
	}
	return balance, nil
}

func debitTokens(ctx context.Context, st repository.Store, userID string, amount int64, txType string, referenceID *string, description string) (*model.UserTokenBalance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := st.TokenBalances().FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Balance < amount {
		return nil, ErrInsufficientBalance
	}
	balance.Balance -= amount
	if err := st.TokenBalances().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}

	if err := appendLedger(ctx, st, userID, -amount, txType, referenceID, description); err != nil {
		return nil, err
	}
	return balance, nil
}

func refundTokens(ctx context.Context, st repository.Store, userID string, amount int64, referenceID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := st.TokenBalances().FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	current := int64(0)
	if balance != nil {
		current = balance.Balance
	}

	actual := amount
	if current < amount {
		actual = current
	}
	if actual == 0 {
		return 0, nil
	}

	balance.Balance -= actual
	if err := st.TokenBalances().Save(ctx, balance); err != nil {
		return 0, fmt.Errorf("save balance: %w", err)
	}
	if err := appendLedger(ctx, st, userID, -actual, model.TokenTransactionTypeRefund, referenceID, description); err != nil {
		return 0, err
	}
	return actual, nil
}

func appendLedger(ctx context.Context, st repository.Store, userID string, amount int64, txType string, referenceID *string, description string) error {
	entry := &model.TokenTransaction{
		ID:              uuid.NewString(),
		TransactionNo:   idgen.GenerateTransactionNumber(),
		UserID:          userID,
		Amount:          amount,
		TransactionType: txType,
		ReferenceID:     referenceID,
		Description:     description,
	}
	if err := st.TokenTransactions().Create(ctx, entry); err != nil {
		return fmt.Errorf("append token ledger: %w", err)
	}
	return nil
}
