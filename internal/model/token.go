package model

import (
	"time"
)

// UserTokenBalance is the current token count per user. Created lazily
// on first credit. Balance never goes negative; the refund saga's
// clamped debit is the mechanism that keeps that true.
type UserTokenBalance struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserTokenBalance) TableName() string {
	return "user_token_balance"
}

// TokenTransaction is an append-only ledger entry. One row per
// credit/debit, written in the same unit of work as the balance
// mutation. Never updated or deleted.
type TokenTransaction struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TransactionNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID          string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Amount          int64     `gorm:"not null" json:"amount"` // positive credit, negative debit
	TransactionType string    `gorm:"type:varchar(20);not null" json:"transaction_type"`
	ReferenceID     *string   `gorm:"type:varchar(36);index" json:"reference_id"`
	Description     string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (TokenTransaction) TableName() string {
	return "token_transaction"
}
