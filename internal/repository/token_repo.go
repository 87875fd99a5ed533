package repository

import (
	"context"
	"errors"

	"subbilling/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TokenBalanceRepo struct {
	db *gorm.DB
}

func (r *TokenBalanceRepo) FindByUserID(ctx context.Context, userID string) (*model.UserTokenBalance, error) {
	var balance model.UserTokenBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreate inserts a zero balance on first use. The conflict clause
// keeps concurrent first credits from racing the insert.
func (r *TokenBalanceRepo) GetOrCreate(ctx context.Context, userID string) (*model.UserTokenBalance, error) {
	balance, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}

	fresh := &model.UserTokenBalance{
		ID:      uuid.NewString(),
		UserID:  userID,
		Balance: 0,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(fresh).Error
	if err != nil {
		return nil, err
	}

	return r.FindByUserID(ctx, userID)
}

func (r *TokenBalanceRepo) Save(ctx context.Context, balance *model.UserTokenBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

type TokenTransactionRepo struct {
	db *gorm.DB
}

func (r *TokenTransactionRepo) Create(ctx context.Context, tx *model.TokenTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TokenTransactionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.TokenTransaction, error) {
	var transactions []*model.TokenTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&transactions).Error
	return transactions, err
}
