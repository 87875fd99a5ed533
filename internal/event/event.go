package event

import (
	"fmt"
	"time"
)

// Event names. Webhook adapters normalize provider payloads into one of
// these before submitting to the dispatcher.
const (
	NameCheckoutRequested     = "checkout.requested"
	NamePaymentCaptured       = "payment.captured"
	NamePaymentRefunded       = "payment.refunded"
	NameRefundReversed        = "payment.refund_reversed"
	NameSubscriptionCancelled = "subscription.cancelled"
	NamePaymentFailed         = "payment.failed"
)

// Event is a typed payload describing something that happened.
// Constructed by the ingestion layer, consumed once by the dispatcher.
type Event interface {
	Name() string
	OccurredAt() time.Time
}

type base struct {
	Timestamp time.Time `json:"timestamp"`
}

func (b base) OccurredAt() time.Time {
	if b.Timestamp.IsZero() {
		return time.Now()
	}
	return b.Timestamp
}

func newBase() base {
	return base{Timestamp: time.Now()}
}

type CheckoutRequested struct {
	base
	UserID            string   `json:"user_id"`
	PlanID            string   `json:"plan_id,omitempty"`
	TokenBundleIDs    []string `json:"token_bundle_ids,omitempty"`
	AddOnIDs          []string `json:"add_on_ids,omitempty"`
	Currency          string   `json:"currency"`
	PaymentMethodCode string   `json:"payment_method_code,omitempty"`
}

func (CheckoutRequested) Name() string { return NameCheckoutRequested }

func NewCheckoutRequested(userID, planID string, bundleIDs, addOnIDs []string, currency, paymentMethod string) CheckoutRequested {
	return CheckoutRequested{
		base:              newBase(),
		UserID:            userID,
		PlanID:            planID,
		TokenBundleIDs:    bundleIDs,
		AddOnIDs:          addOnIDs,
		Currency:          currency,
		PaymentMethodCode: paymentMethod,
	}
}

type PaymentCaptured struct {
	base
	InvoiceID        string `json:"invoice_id"`
	PaymentReference string `json:"payment_reference"`
	Amount           string `json:"amount,omitempty"`
	Currency         string `json:"currency,omitempty"`
	Provider         string `json:"provider,omitempty"`
	TransactionID    string `json:"transaction_id,omitempty"`
}

func (PaymentCaptured) Name() string { return NamePaymentCaptured }

func NewPaymentCaptured(invoiceID, paymentReference, provider string) PaymentCaptured {
	return PaymentCaptured{
		base:             newBase(),
		InvoiceID:        invoiceID,
		PaymentReference: paymentReference,
		Provider:         provider,
	}
}

type PaymentRefunded struct {
	base
	InvoiceID       string `json:"invoice_id"`
	RefundReference string `json:"refund_reference"`
}

func (PaymentRefunded) Name() string { return NamePaymentRefunded }

func NewPaymentRefunded(invoiceID, refundReference string) PaymentRefunded {
	return PaymentRefunded{base: newBase(), InvoiceID: invoiceID, RefundReference: refundReference}
}

type RefundReversed struct {
	base
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason,omitempty"`
}

func (RefundReversed) Name() string { return NameRefundReversed }

func NewRefundReversed(invoiceID, reason string) RefundReversed {
	return RefundReversed{base: newBase(), InvoiceID: invoiceID, Reason: reason}
}

type SubscriptionCancelled struct {
	base
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

func (SubscriptionCancelled) Name() string { return NameSubscriptionCancelled }

type PaymentFailed struct {
	base
	SubscriptionID string `json:"subscription_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

func (PaymentFailed) Name() string { return NamePaymentFailed }

// Result is the outcome of a saga handler. Sagas report failures here
// instead of panicking; the ingestion layer maps it onto HTTP without
// the saga knowing about HTTP.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Err     string                 `json:"error,omitempty"`
}

func SuccessResult(data map[string]interface{}) Result {
	return Result{Success: true, Data: data}
}

func ErrorResult(format string, args ...interface{}) Result {
	return Result{Success: false, Err: fmt.Sprintf(format, args...)}
}
