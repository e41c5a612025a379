package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syed-c/standzon-sub008/platform/logger"
)

// InMemoryBus dispatches events to handlers registered in this process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	log      *logger.Logger
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &InMemoryBus{handlers: make(map[string][]Handler), log: log}
}

// Subscribe registers a handler for eventName.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish runs every handler in its own goroutine. Handler errors and
// panics are logged and never reach the publisher.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.EventName()) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			if err := b.safeHandle(context.WithoutCancel(ctx), h, event); err != nil {
				b.log.Warn("event handler failed", "event", event.EventName(), "error", err)
			}
		}(h)
	}
}

// PublishSync runs handlers sequentially and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range b.snapshot(event.EventName()) {
		if err := b.safeHandle(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until handlers started by Publish have returned.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}

func (b *InMemoryBus) snapshot(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.handlers[name]...)
}

func (b *InMemoryBus) safeHandle(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

var _ Bus = (*InMemoryBus)(nil)
