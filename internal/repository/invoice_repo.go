package repository

import (
	"context"
	"errors"
	"time"

	"subbilling/internal/model"

	"gorm.io/gorm"
)

type InvoiceRepo struct {
	db *gorm.DB
}

func (r *InvoiceRepo) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *InvoiceRepo) FindByProviderSessionID(ctx context.Context, sessionID string) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("provider_session_id = ?", sessionID).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *InvoiceRepo) FindExpiredPending(ctx context.Context, limit int) ([]*model.Invoice, error) {
	var invoices []*model.Invoice
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			model.InvoiceStatusPending, time.Now()).
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *InvoiceRepo) Create(ctx context.Context, invoice *model.Invoice) error {
	return r.db.WithContext(ctx).Omit("LineItems").Create(invoice).Error
}

func (r *InvoiceRepo) Save(ctx context.Context, invoice *model.Invoice) error {
	return r.db.WithContext(ctx).Omit("LineItems").Save(invoice).Error
}

func (r *InvoiceRepo) CreateLineItem(ctx context.Context, item *model.InvoiceLineItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}
