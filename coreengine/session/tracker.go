// Package session provides the SessionTracker, a concurrency-safe registry of
// lightweight per-request progress snapshots that can be polled while the
// workflow is still running.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// Status is the lifecycle status of a tracked session.
type Status string

const (
	// StatusProcessing indicates the workflow is running.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the workflow produced a final result.
	StatusCompleted Status = "completed"
	// StatusError indicates the workflow failed at the orchestration level.
	StatusError Status = "error"
	// StatusCancelled indicates the caller asked the workflow to stop.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further progress is expected.
func (s Status) IsTerminal() bool {
	return s != StatusProcessing
}

// ErrSessionInFlight is returned by Create when the session is still processing.
var ErrSessionInFlight = errors.New("session already in flight")

// Step is one progress record.
type Step struct {
	Step      int       `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a copy of a tracked session.
type Snapshot struct {
	SessionID   string             `json:"session_id"`
	Status      Status             `json:"status"`
	StartTime   time.Time          `json:"start_time"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CurrentStep int                `json:"current_step"`
	Steps       []Step             `json:"steps"`
	Result      *state.FinalResult `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type entry struct {
	status      Status
	startTime   time.Time
	updatedAt   time.Time
	currentStep int
	steps       []Step
	result      *state.FinalResult
	err         string
}

func (e *entry) snapshot(id string) Snapshot {
	steps := make([]Step, len(e.steps))
	copy(steps, e.steps)
	return Snapshot{
		SessionID:   id,
		Status:      e.status,
		StartTime:   e.startTime,
		UpdatedAt:   e.updatedAt,
		CurrentStep: e.currentStep,
		Steps:       steps,
		Result:      e.result.Clone(),
		Error:       e.err,
	}
}

// Tracker is the session registry. Construct with NewTracker; the zero value is not usable.
type Tracker struct {
	sessions map[string]*entry
	logger   observability.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// NewTracker creates a Tracker. A nil clock uses time.Now.
func NewTracker(logger observability.Logger, clock func() time.Time) *Tracker {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		sessions: make(map[string]*entry),
		logger:   logger,
		now:      clock,
	}
}

// Create registers a session with status processing. A terminal session with
// the same id is replaced; a session still processing is rejected.
func (t *Tracker) Create(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.sessions[sessionID]; ok && existing.status == StatusProcessing {
		return fmt.Errorf("%w: %s", ErrSessionInFlight, sessionID)
	}

	now := t.now()
	t.sessions[sessionID] = &entry{
		status:    StatusProcessing,
		startTime: now,
		updatedAt: now,
		steps:     []Step{},
	}
	observability.SetTrackedSessions(len(t.sessions))

	t.logger.Debug("session_created", "session_id", sessionID)
	return nil
}

// UpdateStep appends a progress record. Returns false for unknown sessions.
func (t *Tracker) UpdateStep(sessionID, message string, step int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	now := t.now()
	e.steps = append(e.steps, Step{Step: step, Message: message, Timestamp: now})
	e.currentStep = step
	e.updatedAt = now
	return true
}

// GetStatus returns a snapshot of the session. The bool is false when the
// session is unknown.
func (t *Tracker) GetStatus(sessionID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(sessionID), true
}

// Cancel marks the session cancelled. The running workflow observes the flag
// at its next node boundary. Returns false for unknown sessions.
func (t *Tracker) Cancel(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	if e.status == StatusProcessing {
		e.status = StatusCancelled
		e.updatedAt = t.now()
		t.logger.Info("session_cancelled", "session_id", sessionID)
	}
	return true
}

// IsCancelled reports whether the session has been cancelled.
func (t *Tracker) IsCancelled(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.sessions[sessionID]
	return ok && e.status == StatusCancelled
}

// Complete marks the session completed with its result. A cancelled session stays cancelled.
func (t *Tracker) Complete(sessionID string, result *state.FinalResult) bool {
	return t.finish(sessionID, StatusCompleted, result, "")
}

// Fail marks the session as errored.
func (t *Tracker) Fail(sessionID string, err error) bool {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return t.finish(sessionID, StatusError, nil, msg)
}

func (t *Tracker) finish(sessionID string, status Status, result *state.FinalResult, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	if e.status == StatusCancelled {
		return true
	}
	e.status = status
	e.result = result
	e.err = errMsg
	e.updatedAt = t.now()
	return true
}

// Cleanup evicts sessions older than timeout, whatever their status.
// Returns the number of evicted sessions.
func (t *Tracker) Cleanup(timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-timeout)
	evicted := 0

	for id, e := range t.sessions {
		if e.startTime.Before(cutoff) {
			delete(t.sessions, id)
			evicted++
			t.logger.Debug("session_evicted",
				"session_id", id,
				"status", string(e.status),
				"start_time", e.startTime.Format(time.RFC3339),
			)
		}
	}

	observability.SetTrackedSessions(len(t.sessions))
	if evicted > 0 {
		observability.RecordSessionsEvicted(evicted)
	}
	return evicted
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// List returns snapshots of all sessions, newest first.
func (t *Tracker) List() []Snapshot {
	t.mu.RLock()
	out := make([]Snapshot, 0, len(t.sessions))
	for id, e := range t.sessions {
		out = append(out, e.snapshot(id))
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
