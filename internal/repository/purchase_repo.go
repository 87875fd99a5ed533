package repository

import (
	"context"
	"errors"

	"subbilling/internal/model"

	"gorm.io/gorm"
)

type PurchaseRepo struct {
	db *gorm.DB
}

func (r *PurchaseRepo) FindByID(ctx context.Context, id string) (*model.TokenBundlePurchase, error) {
	var purchase model.TokenBundlePurchase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *PurchaseRepo) Create(ctx context.Context, purchase *model.TokenBundlePurchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *PurchaseRepo) Save(ctx context.Context, purchase *model.TokenBundlePurchase) error {
	return r.db.WithContext(ctx).Save(purchase).Error
}

type AddOnSubscriptionRepo struct {
	db *gorm.DB
}

func (r *AddOnSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.AddOnSubscription, error) {
	var sub model.AddOnSubscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddOnSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *AddOnSubscriptionRepo) FindBySubscription(ctx context.Context, subscriptionID string) ([]*model.AddOnSubscription, error) {
	var subs []*model.AddOnSubscription
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Find(&subs).Error
	return subs, err
}

func (r *AddOnSubscriptionRepo) Create(ctx context.Context, sub *model.AddOnSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *AddOnSubscriptionRepo) Save(ctx context.Context, sub *model.AddOnSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}
