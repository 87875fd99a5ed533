package model

import (
	"time"
)

// AddOnSubscription attaches an add-on to a user, optionally under a
// parent subscription. Same lifecycle shape as Subscription but without
// pause and trial.
type AddOnSubscription struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
	AddOnID        string     `gorm:"type:varchar(36);not null" json:"addon_id"`
	SubscriptionID *string    `gorm:"type:varchar(36);index" json:"subscription_id"`
	InvoiceID      *string    `gorm:"type:varchar(36);index" json:"invoice_id"`
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ActivatedAt    *time.Time `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CancelledAt    *time.Time `json:"cancelled_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AddOnSubscription) TableName() string {
	return "addon_subscription"
}

func (a *AddOnSubscription) Activate() {
	now := time.Now()
	a.Status = SubscriptionStatusActive
	a.ActivatedAt = &now
	a.CancelledAt = nil
}

func (a *AddOnSubscription) Cancel() {
	now := time.Now()
	a.Status = SubscriptionStatusCancelled
	a.CancelledAt = &now
}

func (a *AddOnSubscription) Expire() {
	a.Status = SubscriptionStatusExpired
}
