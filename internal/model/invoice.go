package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is one billable transaction, possibly covering several line
// items (subscription, token bundles, add-ons). Sagas only ever move it
// through the transitions in ValidInvoiceTransitions; it is never
// deleted by saga code.
type Invoice struct {
	ID                string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID            string          `gorm:"type:varchar(36);index;not null" json:"user_id"`
	TarifPlanID       *string         `gorm:"type:varchar(36)" json:"tarif_plan_id"`
	SubscriptionID    *string         `gorm:"type:varchar(36)" json:"subscription_id"`
	InvoiceNumber     string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"invoice_number"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(10,2)" json:"subtotal"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tax_amount"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_amount"`
	Currency          string          `gorm:"type:varchar(3);not null;default:EUR" json:"currency"`
	Status            string          `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod     string          `gorm:"type:varchar(50)" json:"payment_method"`
	PaymentRef        string          `gorm:"type:varchar(255)" json:"payment_ref"`
	ProviderSessionID string          `gorm:"type:varchar(255);index" json:"provider_session_id"`
	InvoicedAt        time.Time       `gorm:"not null" json:"invoiced_at"`
	PaidAt            *time.Time      `json:"paid_at"`
	ExpiresAt         *time.Time      `json:"expires_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID" json:"line_items"`
}

func (Invoice) TableName() string {
	return "user_invoice"
}

// IsPayable reports whether the invoice can still be paid.
func (i *Invoice) IsPayable() bool {
	if i.Status != InvoiceStatusPending {
		return false
	}
	if i.ExpiresAt != nil && i.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// MarkPaid records payment metadata and moves the invoice to PAID.
func (i *Invoice) MarkPaid(paymentRef string) {
	now := time.Now()
	i.Status = InvoiceStatusPaid
	i.PaymentRef = paymentRef
	i.PaidAt = &now
}

func (i *Invoice) MarkFailed() {
	i.Status = InvoiceStatusFailed
}

func (i *Invoice) MarkCancelled() {
	i.Status = InvoiceStatusCancelled
}

func (i *Invoice) MarkRefunded() {
	i.Status = InvoiceStatusRefunded
}

// InvoiceLineItem is one priced entry on an invoice. ItemID references
// the purchase/enrollment record (subscription id, bundle purchase id,
// add-on subscription id), not the catalog item. Immutable once written.
type InvoiceLineItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID   string          `gorm:"type:varchar(36);index;not null" json:"invoice_id"`
	ItemType    string          `gorm:"type:varchar(20);not null" json:"item_type"`
	ItemID      string          `gorm:"type:varchar(36);not null" json:"item_id"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (InvoiceLineItem) TableName() string {
	return "invoice_line_item"
}
