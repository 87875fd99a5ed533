package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitRunsAllHandlers(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.Register(NamePaymentCaptured, HandlerFunc(func(ctx context.Context, e Event) Result {
		order = append(order, "first")
		return SuccessResult(map[string]interface{}{"a": 1})
	}))
	d.Register(NamePaymentCaptured, HandlerFunc(func(ctx context.Context, e Event) Result {
		order = append(order, "second")
		return SuccessResult(map[string]interface{}{"b": 2})
	}))

	result := d.Emit(context.Background(), NewPaymentCaptured("inv-1", "ref-1", "stripe"))

	assert.True(t, result.Success)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, result.Data["a"])
	assert.Equal(t, 2, result.Data["b"])
	assert.Equal(t, 2, result.Data["handlers_invoked"])
}

func TestEmitAggregatesFirstError(t *testing.T) {
	d := NewDispatcher()
	ran := false

	d.Register(NamePaymentRefunded, HandlerFunc(func(ctx context.Context, e Event) Result {
		return ErrorResult("first failure")
	}))
	d.Register(NamePaymentRefunded, HandlerFunc(func(ctx context.Context, e Event) Result {
		ran = true
		return ErrorResult("second failure")
	}))

	result := d.Emit(context.Background(), NewPaymentRefunded("inv-1", "ref-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "first failure", result.Err)
	assert.True(t, ran, "later handlers still run after a failure")
}

func TestEmitRecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Register(NameRefundReversed, HandlerFunc(func(ctx context.Context, e Event) Result {
		panic("boom")
	}))

	result := d.Emit(context.Background(), NewRefundReversed("inv-1", ""))

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "handler panic")
}

func TestEmitNoHandlers(t *testing.T) {
	d := NewDispatcher()
	result := d.Emit(context.Background(), NewPaymentCaptured("inv-1", "ref-1", ""))

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Data["handlers_invoked"])
}

type pickyHandler struct {
	accepted bool
}

func (h *pickyHandler) CanHandle(e Event) bool {
	ev, ok := e.(PaymentCaptured)
	return ok && ev.Provider == "stripe"
}

func (h *pickyHandler) Handle(ctx context.Context, e Event) Result {
	h.accepted = true
	return SuccessResult(nil)
}

func TestEmitRespectsCanHandle(t *testing.T) {
	d := NewDispatcher()
	h := &pickyHandler{}
	d.Register(NamePaymentCaptured, h)

	result := d.Emit(context.Background(), NewPaymentCaptured("inv-1", "ref-1", "paypal"))
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Data["handlers_invoked"])
	assert.False(t, h.accepted)

	result = d.Emit(context.Background(), NewPaymentCaptured("inv-1", "ref-1", "stripe"))
	assert.Equal(t, 1, result.Data["handlers_invoked"])
	assert.True(t, h.accepted)
}
