package repository

import (
	"context"
	"errors"

	"subbilling/internal/model"

	"gorm.io/gorm"
)

type CatalogRepo struct {
	db *gorm.DB
}

func (r *CatalogRepo) FindPlanByID(ctx context.Context, id string) (*model.TarifPlan, error) {
	var plan model.TarifPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *CatalogRepo) FindBundleByID(ctx context.Context, id string) (*model.TokenBundle, error) {
	var bundle model.TokenBundle
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bundle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBundleNotFound
		}
		return nil, err
	}
	return &bundle, nil
}

func (r *CatalogRepo) FindAddOnByID(ctx context.Context, id string) (*model.AddOn, error) {
	var addon model.AddOn
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&addon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddOnNotFound
		}
		return nil, err
	}
	return &addon, nil
}
