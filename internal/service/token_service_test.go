package service_test

import (
	"context"
	"strings"
	"testing"

	"subbilling/internal/model"
	"subbilling/internal/repository/memory"
	"subbilling/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCreditAndBalance(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewTokenService(store)
	ctx := context.Background()

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "unknown user reads as zero")

	updated, err := svc.Credit(ctx, "user-1", 250, model.TokenTransactionTypeBonus, nil, "welcome bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(250), updated.Balance)

	balance, err = svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)
}

func TestTokenDebitInsufficient(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewTokenService(store)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 100, model.TokenTransactionTypePurchase, nil, "")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, "user-1", 150, model.TokenTransactionTypeUsage, nil, "")
	assert.ErrorIs(t, err, service.ErrInsufficientBalance)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "failed debit must not touch the balance")
}

func TestTokenInvalidAmount(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewTokenService(store)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 0, model.TokenTransactionTypeBonus, nil, "")
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	_, err = svc.Debit(ctx, "user-1", -5, model.TokenTransactionTypeUsage, nil, "")
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}

func TestTokenLedger(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewTokenService(store)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 500, model.TokenTransactionTypePurchase, nil, "bundle")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, "user-1", 120, model.TokenTransactionTypeUsage, nil, "api usage")
	require.NoError(t, err)

	txs, err := svc.ListTransactions(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Newest first.
	assert.Equal(t, int64(-120), txs[0].Amount)
	assert.Equal(t, model.TokenTransactionTypeUsage, txs[0].TransactionType)
	assert.Equal(t, int64(500), txs[1].Amount)
	assert.True(t, strings.HasPrefix(txs[0].TransactionNo, "TXN-"))

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(380), balance)
}

func TestRefundTokensClamped(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewTokenService(store)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 500, model.TokenTransactionTypePurchase, nil, "")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, "user-1", 450, model.TokenTransactionTypeUsage, nil, "")
	require.NoError(t, err)

	debited, err := svc.RefundTokens(ctx, "user-1", 500, nil, "refund")
	require.NoError(t, err)
	assert.Equal(t, int64(50), debited)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// A refund against an already-empty balance debits nothing.
	debited, err = svc.RefundTokens(ctx, "user-1", 500, nil, "refund again")
	require.NoError(t, err)
	assert.Equal(t, int64(0), debited)
}
