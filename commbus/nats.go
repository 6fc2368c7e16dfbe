package commbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the NATS subject prefix for forwarded events.
const DefaultSubjectPrefix = "assistant.events"

// natsPublisher is the subset of *nats.Conn the forwarder uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials a NATS server with reconnect handling.
func ConnectNATS(url string, logger observability.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("assistant-engine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// forwardedEvent is the wire form published to NATS.
type forwardedEvent struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Payload   Message `json:"payload"`
}

// NATSForwarder republishes bus events on NATS subjects "<prefix>.<EventType>".
type NATSForwarder struct {
	conn   natsPublisher
	prefix string
	logger observability.Logger
}

// NewNATSForwarder creates a forwarder. An empty prefix uses DefaultSubjectPrefix.
func NewNATSForwarder(conn natsPublisher, prefix string, logger observability.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &NATSForwarder{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(eventType string) string {
	return f.prefix + "." + eventType
}

// Handle is a HandlerFunc; subscribe it with AllEvents.
func (f *NATSForwarder) Handle(_ context.Context, message Message) error {
	eventType := GetMessageType(message)
	data, err := json.Marshal(forwardedEvent{
		Type:      eventType,
		SessionID: SessionIDOf(message),
		Payload:   message,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	if err := f.conn.Publish(f.Subject(eventType), data); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Attach subscribes the forwarder to every event on bus. Returns the unsubscribe func.
func (f *NATSForwarder) Attach(bus Bus) func() {
	return bus.Subscribe(AllEvents, f.Handle)
}
