package model

const (
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusFailed    = "FAILED"
	InvoiceStatusCancelled = "CANCELLED"
	InvoiceStatusRefunded  = "REFUNDED"
)

// ValidInvoiceTransitions is the invoice state machine. Every non-PAID
// status can still move to PAID: a capture records money the provider
// already took, so a late webhook outranks FAILED or CANCELLED.
// REFUNDED -> PAID is also the refund-reversal (restore) edge.
var ValidInvoiceTransitions = map[string][]string{
	InvoiceStatusPending:   {InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCancelled},
	InvoiceStatusPaid:      {InvoiceStatusRefunded},
	InvoiceStatusFailed:    {InvoiceStatusPaid},
	InvoiceStatusCancelled: {InvoiceStatusPaid},
	InvoiceStatusRefunded:  {InvoiceStatusPaid},
}

func InvoiceCanTransition(current, target string) bool {
	allowed, ok := ValidInvoiceTransitions[current]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

const (
	SubscriptionStatusPending   = "PENDING"
	SubscriptionStatusTrialing  = "TRIALING"
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPaused    = "PAUSED"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

const (
	PurchaseStatusPending   = "PENDING"
	PurchaseStatusCompleted = "COMPLETED"
	PurchaseStatusRefunded  = "REFUNDED"
	PurchaseStatusCancelled = "CANCELLED"
)

const (
	LineItemTypeSubscription = "SUBSCRIPTION"
	LineItemTypeTokenBundle  = "TOKEN_BUNDLE"
	LineItemTypeAddOn        = "ADD_ON"
)

const (
	TokenTransactionTypePurchase   = "PURCHASE"
	TokenTransactionTypeUsage      = "USAGE"
	TokenTransactionTypeRefund     = "REFUND"
	TokenTransactionTypeBonus      = "BONUS"
	TokenTransactionTypeAdjustment = "ADJUSTMENT"
)

const (
	BillingPeriodMonthly   = "MONTHLY"
	BillingPeriodQuarterly = "QUARTERLY"
	BillingPeriodYearly    = "YEARLY"
	BillingPeriodOneTime   = "ONE_TIME"
)

// PeriodDays maps a billing period to its subscription duration.
// ONE_TIME is treated as lifetime (~100 years).
var PeriodDays = map[string]int{
	BillingPeriodMonthly:   30,
	BillingPeriodQuarterly: 90,
	BillingPeriodYearly:    365,
	BillingPeriodOneTime:   36500,
}

// PeriodDaysFor returns the duration for a billing period, defaulting
// to monthly for unknown values.
func PeriodDaysFor(period string) int {
	if days, ok := PeriodDays[period]; ok {
		return days
	}
	return 30
}
