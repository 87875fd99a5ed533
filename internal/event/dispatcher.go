package event

import (
	"context"
	"log"
	"sync"
)

// Handler processes one kind of domain event.
type Handler interface {
	CanHandle(e Event) bool
	Handle(ctx context.Context, e Event) Result
}

// Dispatcher is a synchronous in-process registry mapping event names to
// handler sets. It does not queue or retry; webhook-provider retries plus
// saga idempotency are the delivery-safety mechanism.
//
// Construct one at process start, register handlers during startup, then
// treat it as read-only.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Register adds a handler for an event name. Handlers run in
// registration order on Emit.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// Emit invokes every registered handler whose CanHandle accepts the
// event and combines their results: success only if all succeeded. On a
// failure, later handlers still run (independent side effects must not
// be skipped) but the aggregate carries the first error. A panicking
// handler is converted to a failure result; an event must never crash
// the serving goroutine.
func (d *Dispatcher) Emit(ctx context.Context, e Event) Result {
	d.mu.RLock()
	registered := d.handlers[e.Name()]
	d.mu.RUnlock()

	combined := Result{Success: true, Data: map[string]interface{}{}}
	invoked := 0

	for _, h := range registered {
		if !h.CanHandle(e) {
			continue
		}
		invoked++

		result := safeHandle(ctx, h, e)
		if !result.Success {
			log.Printf("[Dispatcher] handler failed: event=%s err=%s", e.Name(), result.Err)
			if combined.Success {
				combined.Success = false
				combined.Err = result.Err
			}
			continue
		}
		for k, v := range result.Data {
			combined.Data[k] = v
		}
	}

	combined.Data["handlers_invoked"] = invoked
	return combined
}

func safeHandle(ctx context.Context, h Handler, e Event) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = ErrorResult("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, e)
}

// HandlerFunc adapts a function to the Handler interface for handlers
// that accept every event they are registered under.
type HandlerFunc func(ctx context.Context, e Event) Result

func (f HandlerFunc) CanHandle(Event) bool { return true }

func (f HandlerFunc) Handle(ctx context.Context, e Event) Result {
	return f(ctx, e)
}
