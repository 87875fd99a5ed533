package model

import (
	"time"
)

// Subscription is a user's plan enrollment. At most one ACTIVE
// subscription per user; the capture saga enforces this at activation
// time by cancelling any previous active one.
type Subscription struct {
	ID                     string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID                 string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
	TarifPlanID            string     `gorm:"type:varchar(36);not null" json:"tarif_plan_id"`
	PendingPlanID          *string    `gorm:"type:varchar(36)" json:"pending_plan_id"`
	Status                 string     `gorm:"type:varchar(20);index;not null" json:"status"`
	StartedAt              *time.Time `json:"started_at"`
	ExpiresAt              *time.Time `json:"expires_at"`
	TrialEndsAt            *time.Time `json:"trial_ends_at"`
	PausedAt               *time.Time `json:"paused_at"`
	CancelledAt            *time.Time `json:"cancelled_at"`
	ProviderSubscriptionID string     `gorm:"type:varchar(255);index" json:"provider_subscription_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Activate moves the subscription to ACTIVE with a fresh activation
// window of durationDays starting now.
func (s *Subscription) Activate(durationDays int) {
	now := time.Now()
	expires := now.AddDate(0, 0, durationDays)
	s.Status = SubscriptionStatusActive
	s.StartedAt = &now
	s.ExpiresAt = &expires
	s.CancelledAt = nil
}

// StartTrial moves the subscription to TRIALING. Trial periods are
// invoice-free; the trial-expiry sweep turns ended trials back into
// PENDING with a renewal invoice.
func (s *Subscription) StartTrial(trialDays int) {
	now := time.Now()
	ends := now.AddDate(0, 0, trialDays)
	s.Status = SubscriptionStatusTrialing
	s.StartedAt = &now
	s.TrialEndsAt = &ends
	s.ExpiresAt = &ends
}

func (s *Subscription) Cancel() {
	now := time.Now()
	s.Status = SubscriptionStatusCancelled
	s.CancelledAt = &now
}

func (s *Subscription) Expire() {
	s.Status = SubscriptionStatusExpired
}

// Pause stops the expiry clock; Resume extends ExpiresAt by the paused
// duration.
func (s *Subscription) Pause() {
	now := time.Now()
	s.Status = SubscriptionStatusPaused
	s.PausedAt = &now
}

func (s *Subscription) Resume() {
	if s.PausedAt != nil && s.ExpiresAt != nil {
		pausedFor := time.Since(*s.PausedAt)
		extended := s.ExpiresAt.Add(pausedFor)
		s.ExpiresAt = &extended
	}
	s.Status = SubscriptionStatusActive
	s.PausedAt = nil
}

// IsExpired reports whether the expiry clock has run out on an active
// subscription.
func (s *Subscription) IsExpired() bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(time.Now())
}
