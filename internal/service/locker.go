package service

import (
	"context"
)

// Locker serializes saga execution per invoice so that two concurrent
// deliveries of the same webhook do not interleave. The sagas stay
// idempotent without it; the lock only narrows the race window.
type Locker interface {
	// AcquireInvoiceLock blocks until the per-invoice lock is held (or
	// fails). The returned release must be called when the saga is done.
	AcquireInvoiceLock(ctx context.Context, invoiceID, holder string) (release func(context.Context), err error)
}

// NopLocker is used in tests and single-process runs.
type NopLocker struct{}

func (NopLocker) AcquireInvoiceLock(context.Context, string, string) (func(context.Context), error) {
	return func(context.Context) {}, nil
}
