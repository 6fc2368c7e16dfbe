package commbus

import "time"

// MessageCategoryEvent is the only category the assistant bus carries.
const MessageCategoryEvent = "event"

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// =============================================================================
// STEP EVENTS
// =============================================================================

// StepStarted is emitted when a graph node records its step and begins work.
type StepStarted struct {
	SessionID string    `json:"session_id"`
	Node      string    `json:"node"`
	Step      int       `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Category implements the Message interface.
func (m *StepStarted) Category() string { return MessageCategoryEvent }

// StepCompleted is emitted once a node's output has been merged into state.
type StepCompleted struct {
	SessionID  string `json:"session_id"`
	Node       string `json:"node"`
	Step       int    `json:"step"`
	DurationMS int    `json:"duration_ms"`
	Degraded   bool   `json:"degraded"`
}

// Category implements the Message interface.
func (m *StepCompleted) Category() string { return MessageCategoryEvent }

// =============================================================================
// WORKFLOW EVENTS
// =============================================================================

// WorkflowCompleted is emitted when Finalize produced a result.
type WorkflowCompleted struct {
	SessionID  string  `json:"session_id"`
	Intent     string  `json:"intent"`
	InputType  string  `json:"input_type"`
	RetryCount int     `json:"retry_count"`
	Quality    float64 `json:"quality_score"`
	DurationMS int     `json:"duration_ms"`
}

// Category implements the Message interface.
func (m *WorkflowCompleted) Category() string { return MessageCategoryEvent }

// WorkflowFailed is emitted when the engine itself could not finish.
type WorkflowFailed struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
	Step      int    `json:"step"`
}

// Category implements the Message interface.
func (m *WorkflowFailed) Category() string { return MessageCategoryEvent }

// WorkflowCancelled is emitted when traversal stops at a node boundary after cancellation.
type WorkflowCancelled struct {
	SessionID string `json:"session_id"`
	Step      int    `json:"step"`
}

// Category implements the Message interface.
func (m *WorkflowCancelled) Category() string { return MessageCategoryEvent }

// GetMessageType returns the type name of a message.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *StepStarted:
		return "StepStarted"
	case *StepCompleted:
		return "StepCompleted"
	case *WorkflowCompleted:
		return "WorkflowCompleted"
	case *WorkflowFailed:
		return "WorkflowFailed"
	case *WorkflowCancelled:
		return "WorkflowCancelled"
	default:
		return "Unknown"
	}
}
