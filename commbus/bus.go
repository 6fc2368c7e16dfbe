package commbus

import (
	"context"
	"sync"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// InMemoryCommBus is a thread-safe, in-process implementation of Bus.
//
// Usage:
//
//	bus := NewInMemoryCommBus(logger)
//	bus.Subscribe("StepStarted", progressHandler)
//	bus.Subscribe(AllEvents, forwarder.Handle)
//	bus.Publish(ctx, &StepStarted{...})
type InMemoryCommBus struct {
	subscribers map[string][]subscription
	middleware  []Middleware
	logger      observability.Logger
	nextID      uint64
	mu          sync.RWMutex
}

// NewInMemoryCommBus creates a new InMemoryCommBus.
func NewInMemoryCommBus(logger observability.Logger) *InMemoryCommBus {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &InMemoryCommBus{
		subscribers: make(map[string][]subscription),
		middleware:  make([]Middleware, 0),
		logger:      logger,
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish delivers an event to all subscribers concurrently and waits for them.
// Subscriber errors are logged but don't stop other subscribers.
func (b *InMemoryCommBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("event_aborted_by_middleware", "event_type", eventType)
		return nil
	}

	b.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(b.subscribers[eventType])+len(b.subscribers[AllEvents]))
	for _, s := range b.subscribers[eventType] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.subscribers[AllEvents] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.runMiddlewareAfter(ctx, processed, nil)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func(idx int, h HandlerFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("subscriber_panic_recovered", "event_type", eventType, "panic", r)
				}
			}()
			if err := h(ctx, processed); err != nil {
				errs[idx] = err
				b.logger.Warn("subscriber_failed", "event_type", eventType, "subscriber", idx, "error", err.Error())
			}
		}(i, h)
	}
	wg.Wait()

	var first error
	for _, e := range errs {
		if e != nil {
			first = e
			break
		}
	}
	b.runMiddlewareAfter(ctx, processed, first)
	return nil
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe subscribes to an event type.
// Returns an unsubscribe function for cleanup.
func (b *InMemoryCommBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// AddMiddleware adds middleware to the bus.
// Middleware is executed in registration order.
func (b *InMemoryCommBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *InMemoryCommBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// =============================================================================
// MIDDLEWARE EXECUTION
// =============================================================================

func (b *InMemoryCommBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	b.mu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	current := message
	for _, mw := range middleware {
		var err error
		current, err = mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}
	return current, nil
}

func (b *InMemoryCommBus) runMiddlewareAfter(ctx context.Context, message Message, err error) {
	b.mu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	// After hooks run in reverse registration order.
	for i := len(middleware) - 1; i >= 0; i-- {
		middleware[i].After(ctx, message, err)
	}
}
