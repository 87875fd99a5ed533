package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenBundlePurchase is a one-time token purchase. Created PENDING at
// checkout, COMPLETED when payment is captured (tokens credited),
// REFUNDED on refund, back to COMPLETED on restore.
type TokenBundlePurchase struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string          `gorm:"type:varchar(36);index;not null" json:"user_id"`
	BundleID       string          `gorm:"type:varchar(36);not null" json:"bundle_id"`
	InvoiceID      *string         `gorm:"type:varchar(36);index" json:"invoice_id"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	TokenAmount    int64           `gorm:"not null" json:"token_amount"`
	Price          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	TokensCredited bool            `gorm:"not null;default:false" json:"tokens_credited"`
	CompletedAt    *time.Time      `json:"completed_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenBundlePurchase) TableName() string {
	return "token_bundle_purchase"
}

// Complete marks the purchase paid and its tokens credited.
func (p *TokenBundlePurchase) Complete() {
	now := time.Now()
	p.Status = PurchaseStatusCompleted
	p.CompletedAt = &now
	p.TokensCredited = true
}

func (p *TokenBundlePurchase) Refund() {
	p.Status = PurchaseStatusRefunded
}
