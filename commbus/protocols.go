// Package commbus provides the in-process event bus used to broadcast workflow
// progress to observers (logging, NATS forwarding, streaming clients).
//
// Publishing is fan-out: every subscriber of the event type plus every
// wildcard subscriber receives the event. Subscriber errors never reach the
// publisher.
package commbus

import (
	"context"
)

// Message is the protocol for all commbus messages.
type Message interface {
	// Category returns the message category.
	Category() string
}

// TypedMessage can report its own type name.
type TypedMessage interface {
	Message
	MessageType() string
}

// HandlerFunc handles a published message.
type HandlerFunc func(ctx context.Context, message Message) error

// Middleware intercepts messages before and after fan-out.
type Middleware interface {
	// Before is called before the message is delivered.
	// Returning nil aborts delivery.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called once every subscriber returned. err is the first subscriber error.
	After(ctx context.Context, message Message, err error)
}

// Publisher is the narrow interface producers depend on.
type Publisher interface {
	Publish(ctx context.Context, event Message) error
}

// Bus is the full bus protocol.
type Bus interface {
	Publisher

	// Subscribe subscribes to an event type, or to every event with AllEvents.
	// Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()

	// AddMiddleware appends middleware; execution follows registration order.
	AddMiddleware(middleware Middleware)
}
