package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Catalog entities are read-only from the saga's point of view:
// checkout validates against them and copies prices onto line items.
// Admin CRUD for them lives outside this service.

type TarifPlan struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string          `gorm:"type:varchar(100);not null" json:"name"`
	Slug          string          `gorm:"type:varchar(100);uniqueIndex" json:"slug"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	BillingPeriod string          `gorm:"type:varchar(20);not null;default:MONTHLY" json:"billing_period"`
	TrialDays     int             `gorm:"not null;default:0" json:"trial_days"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TarifPlan) TableName() string {
	return "tarif_plan"
}

type TokenBundle struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string          `gorm:"type:varchar(100);not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	TokenAmount int64           `gorm:"not null" json:"token_amount"`
	IsActive    bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenBundle) TableName() string {
	return "token_bundle"
}

type AddOn struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string          `gorm:"type:varchar(100);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AddOn) TableName() string {
	return "addon"
}
