package commbus

import (
	"context"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// LoggingMiddleware logs all message traffic at debug level.
type LoggingMiddleware struct {
	logger observability.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger observability.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.logger.Debug("commbus_event", "category", message.Category(), "event_type", GetMessageType(message))
	return message, nil
}

// After logs delivery failures.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, err error) {
	if err != nil {
		m.logger.Warn("commbus_event_failed", "event_type", GetMessageType(message), "error", err.Error())
	}
}

// SessionIDOf returns the session id carried by a known event, or "".
func SessionIDOf(message Message) string {
	switch m := message.(type) {
	case *StepStarted:
		return m.SessionID
	case *StepCompleted:
		return m.SessionID
	case *WorkflowCompleted:
		return m.SessionID
	case *WorkflowFailed:
		return m.SessionID
	case *WorkflowCancelled:
		return m.SessionID
	}
	return ""
}
