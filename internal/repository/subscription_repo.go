package repository

import (
	"context"
	"errors"
	"time"

	"subbilling/internal/model"

	"gorm.io/gorm"
)

type SubscriptionRepo struct {
	db *gorm.DB
}

func (r *SubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) FindActiveByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) FindByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, providerSubID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) FindExpired(ctx context.Context, limit int) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.SubscriptionStatusActive, time.Now()).
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) FindEndedTrials(ctx context.Context, before time.Time, limit int) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND trial_ends_at < ?", model.SubscriptionStatusTrialing, before).
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) FindExpiringSoon(ctx context.Context, within time.Duration) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	now := time.Now()
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at BETWEEN ? AND ?",
			model.SubscriptionStatusActive, now, now.Add(within)).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepo) Save(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}
