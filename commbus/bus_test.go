package commbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recordingMiddleware struct {
	mu      sync.Mutex
	befores []string
	afters  []error
	abort   bool
}

func (m *recordingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.befores = append(m.befores, GetMessageType(message))
	if m.abort {
		return nil, nil
	}
	return message, nil
}

func (m *recordingMiddleware) After(ctx context.Context, message Message, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afters = append(m.afters, err)
}

type fakeNATS struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

// =============================================================================
// PUBLISH / SUBSCRIBE
// =============================================================================

func TestPublish_FanOut(t *testing.T) {
	bus := NewInMemoryCommBus(nil)
	var typed, wildcard int32

	bus.Subscribe("StepStarted", func(ctx context.Context, m Message) error {
		atomic.AddInt32(&typed, 1)
		return nil
	})
	bus.Subscribe(AllEvents, func(ctx context.Context, m Message) error {
		atomic.AddInt32(&wildcard, 1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &StepStarted{SessionID: "s1", Step: 1}))
	require.NoError(t, bus.Publish(context.Background(), &WorkflowCompleted{SessionID: "s1"}))

	assert.Equal(t, int32(1), atomic.LoadInt32(&typed))
	assert.Equal(t, int32(2), atomic.LoadInt32(&wildcard))
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewInMemoryCommBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), &WorkflowFailed{SessionID: "s1"}))
}

func TestPublish_SubscriberErrorDoesNotPropagate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := NewInMemoryCommBus(observability.NewZapLogger(zap.New(core)))
	mw := &recordingMiddleware{}
	bus.AddMiddleware(mw)

	var delivered int32
	bus.Subscribe("StepCompleted", func(ctx context.Context, m Message) error {
		return errors.New("sink offline")
	})
	bus.Subscribe("StepCompleted", func(ctx context.Context, m Message) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	err := bus.Publish(context.Background(), &StepCompleted{SessionID: "s1"})

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
	require.Len(t, mw.afters, 1)
	assert.EqualError(t, mw.afters[0], "sink offline")
	assert.Equal(t, 1, logs.FilterMessage("subscriber_failed").Len())
}

func TestPublish_SubscriberPanicIsRecovered(t *testing.T) {
	bus := NewInMemoryCommBus(nil)
	bus.Subscribe("StepStarted", func(ctx context.Context, m Message) error {
		panic("bad subscriber")
	})

	assert.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), &StepStarted{})
	})
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryCommBus(nil)
	var calls int32

	unsubscribe := bus.Subscribe("StepStarted", func(ctx context.Context, m Message) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	other := bus.Subscribe("StepStarted", func(ctx context.Context, m Message) error { return nil })
	assert.Equal(t, 2, bus.SubscriberCount("StepStarted"))

	unsubscribe()
	unsubscribe()
	_ = bus.Publish(context.Background(), &StepStarted{})

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, bus.SubscriberCount("StepStarted"))
	other()
	assert.Equal(t, 0, bus.SubscriberCount("StepStarted"))
}

func TestMiddleware_Abort(t *testing.T) {
	bus := NewInMemoryCommBus(nil)
	bus.AddMiddleware(&recordingMiddleware{abort: true})

	var calls int32
	bus.Subscribe(AllEvents, func(ctx context.Context, m Message) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &StepStarted{}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := NewInMemoryCommBus(nil)
	bus.AddMiddleware(NewLoggingMiddleware(observability.NewZapLogger(zap.New(core))))
	bus.Subscribe("WorkflowFailed", func(ctx context.Context, m Message) error { return errors.New("x") })

	_ = bus.Publish(context.Background(), &WorkflowFailed{SessionID: "s1"})

	assert.Equal(t, 1, logs.FilterMessage("commbus_event").Len())
	assert.Equal(t, 1, logs.FilterMessage("commbus_event_failed").Len())
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestGetMessageType(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{&StepStarted{}, "StepStarted"},
		{&StepCompleted{}, "StepCompleted"},
		{&WorkflowCompleted{}, "WorkflowCompleted"},
		{&WorkflowFailed{}, "WorkflowFailed"},
		{&WorkflowCancelled{}, "WorkflowCancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GetMessageType(tt.msg))
			assert.Equal(t, MessageCategoryEvent, tt.msg.Category())
		})
	}
}

func TestSessionIDOf(t *testing.T) {
	assert.Equal(t, "a", SessionIDOf(&StepStarted{SessionID: "a"}))
	assert.Equal(t, "b", SessionIDOf(&WorkflowCancelled{SessionID: "b"}))
	assert.Equal(t, "", SessionIDOf(&unknownMessage{}))
	assert.Equal(t, "Unknown", GetMessageType(&unknownMessage{}))
}

type unknownMessage struct{}

func (unknownMessage) Category() string { return MessageCategoryEvent }

// =============================================================================
// NATS FORWARDER
// =============================================================================

func TestNATSForwarder_Handle(t *testing.T) {
	conn := &fakeNATS{}
	f := NewNATSForwarder(conn, "", nil)
	bus := NewInMemoryCommBus(nil)
	detach := f.Attach(bus)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(context.Background(), &StepStarted{SessionID: "s1", Node: "research", Step: 4, Message: "Researching information...", Timestamp: ts}))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "assistant.events.StepStarted", conn.subjects[0])

	var decoded struct {
		Type      string         `json:"type"`
		SessionID string         `json:"session_id"`
		Payload   map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "StepStarted", decoded.Type)
	assert.Equal(t, "s1", decoded.SessionID)
	assert.Equal(t, "research", decoded.Payload["node"])

	detach()
	_ = bus.Publish(context.Background(), &StepStarted{SessionID: "s1"})
	assert.Len(t, conn.subjects, 1)
}

func TestNATSForwarder_PublishError(t *testing.T) {
	conn := &fakeNATS{err: errors.New("nats: connection closed")}
	f := NewNATSForwarder(conn, "custom.prefix.", nil)

	err := f.Handle(context.Background(), &WorkflowFailed{SessionID: "s1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish WorkflowFailed")
	assert.Equal(t, "custom.prefix.WorkflowFailed", f.Subject("WorkflowFailed"))
}
