package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// CREATE / UPDATE / STATUS
// =============================================================================

func TestTracker_CreateAndGetStatus(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, clock.Now)

	require.NoError(t, tr.Create("s1"))

	snap, ok := tr.GetStatus("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, StatusProcessing, snap.Status)
	assert.Equal(t, clock.Now(), snap.StartTime)
	assert.Empty(t, snap.Steps)
	assert.Nil(t, snap.Result)
}

func TestTracker_CreateRequiresID(t *testing.T) {
	tr := NewTracker(nil, nil)
	assert.Error(t, tr.Create(""))
}

func TestTracker_CreateRejectsInFlight(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))

	err := tr.Create("s1")
	require.ErrorIs(t, err, ErrSessionInFlight)

	tr.Complete("s1", &state.FinalResult{})
	assert.NoError(t, tr.Create("s1"), "terminal sessions may be reused")

	snap, _ := tr.GetStatus("s1")
	assert.Equal(t, StatusProcessing, snap.Status)
}

func TestTracker_UpdateStep(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, clock.Now)
	require.NoError(t, tr.Create("s1"))

	assert.True(t, tr.UpdateStep("s1", "Preprocessing input...", 1))
	clock.Advance(time.Second)
	assert.True(t, tr.UpdateStep("s1", "Understanding your query...", 2))
	assert.False(t, tr.UpdateStep("missing", "x", 1))

	snap, ok := tr.GetStatus("s1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.CurrentStep)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "Understanding your query...", snap.Steps[1].Message)
	assert.True(t, snap.Steps[1].Timestamp.After(snap.Steps[0].Timestamp))
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))
	tr.UpdateStep("s1", "one", 1)

	snap, _ := tr.GetStatus("s1")
	snap.Steps[0].Message = "mutated"

	again, _ := tr.GetStatus("s1")
	assert.Equal(t, "one", again.Steps[0].Message)
}

func TestTracker_SnapshotResultIsACopy(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))
	result := &state.FinalResult{
		Summary:       "done",
		KeyPoints:     []string{"first"},
		Transcription: state.StringPtr("spoken"),
	}
	tr.Complete("s1", result)

	snap, _ := tr.GetStatus("s1")
	require.NotNil(t, snap.Result)
	assert.NotSame(t, result, snap.Result)
	snap.Result.Summary = "mutated"
	snap.Result.KeyPoints[0] = "mutated"
	*snap.Result.Transcription = "mutated"

	again, _ := tr.GetStatus("s1")
	assert.Equal(t, "done", again.Result.Summary)
	assert.Equal(t, "first", again.Result.KeyPoints[0])
	assert.Equal(t, "spoken", *again.Result.Transcription)
	assert.Equal(t, "spoken", *result.Transcription)
}

func TestTracker_UnknownSession(t *testing.T) {
	tr := NewTracker(nil, nil)

	assert.NotPanics(t, func() {
		snap, ok := tr.GetStatus("nope")
		assert.False(t, ok)
		assert.Equal(t, Snapshot{}, snap)
		assert.False(t, tr.Cancel("nope"))
		assert.False(t, tr.IsCancelled("nope"))
		assert.False(t, tr.Complete("nope", nil))
		assert.False(t, tr.Fail("nope", errors.New("x")))
	})
}

// =============================================================================
// TERMINAL STATES
// =============================================================================

func TestTracker_CancelRetainsSteps(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))
	tr.UpdateStep("s1", "Preprocessing input...", 1)

	assert.True(t, tr.Cancel("s1"))
	assert.True(t, tr.IsCancelled("s1"))

	snap, ok := tr.GetStatus("s1")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Len(t, snap.Steps, 1)
}

func TestTracker_CancelledStaysCancelled(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))
	tr.Cancel("s1")

	tr.Complete("s1", &state.FinalResult{Summary: "late"})
	tr.Fail("s1", errors.New("late"))

	snap, _ := tr.GetStatus("s1")
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Nil(t, snap.Result)
}

func TestTracker_CancelCompletedIsNoop(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("s1"))
	tr.Complete("s1", &state.FinalResult{Summary: "done"})

	assert.True(t, tr.Cancel("s1"))

	snap, _ := tr.GetStatus("s1")
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.False(t, tr.IsCancelled("s1"))
}

func TestTracker_CompleteAndFail(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Create("ok"))
	require.NoError(t, tr.Create("bad"))

	tr.Complete("ok", &state.FinalResult{Summary: "done"})
	tr.Fail("bad", errors.New("engine exploded"))

	ok, _ := tr.GetStatus("ok")
	assert.Equal(t, StatusCompleted, ok.Status)
	require.NotNil(t, ok.Result)
	assert.Equal(t, "done", ok.Result.Summary)
	assert.True(t, ok.Status.IsTerminal())

	bad, _ := tr.GetStatus("bad")
	assert.Equal(t, StatusError, bad.Status)
	assert.Equal(t, "engine exploded", bad.Error)
}

// =============================================================================
// CLEANUP
// =============================================================================

func TestTracker_Cleanup(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, clock.Now)

	require.NoError(t, tr.Create("old-processing"))
	require.NoError(t, tr.Create("old-completed"))
	tr.Complete("old-completed", nil)
	clock.Advance(10 * time.Minute)
	require.NoError(t, tr.Create("fresh"))

	evicted := tr.Cleanup(5 * time.Minute)

	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, tr.Len())
	_, ok := tr.GetStatus("old-processing")
	assert.False(t, ok)
	_, ok = tr.GetStatus("fresh")
	assert.True(t, ok)
}

func TestTracker_List(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, clock.Now)
	require.NoError(t, tr.Create("first"))
	clock.Advance(time.Second)
	require.NoError(t, tr.Create("second"))

	list := tr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].SessionID)
	assert.Equal(t, "first", list[1].SessionID)
}

func TestDefaultCleanupConfig(t *testing.T) {
	cfg := DefaultCleanupConfig()
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestTracker_StartCleanupLoop(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := NewTracker(observability.NewZapLogger(zap.New(core)), nil)
	require.NoError(t, tr.Create("s1"))

	stop := tr.StartCleanupLoop(CleanupConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Nanosecond,
	})
	require.NotNil(t, stop)

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	stop()
	stop()

	assert.Greater(t, logs.FilterMessage("cleanup_cycle_completed").Len(), 0)
}

func TestTracker_StartCleanupLoop_DefaultConfig(t *testing.T) {
	tr := NewTracker(nil, nil)
	stop := tr.StartCleanupLoop(CleanupConfig{})
	require.NotNil(t, stop)
	stop()
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker(nil, nil)
	const sessions = 20
	const steps = 50

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, tr.Create(id))

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 1; j <= steps; j++ {
				tr.UpdateStep(id, "step", j)
			}
			tr.Complete(id, &state.FinalResult{})
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < steps; j++ {
				tr.GetStatus(id)
				tr.IsCancelled(id)
				tr.List()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < steps; j++ {
			tr.Cleanup(time.Hour)
		}
	}()
	wg.Wait()

	for i := 0; i < sessions; i++ {
		snap, ok := tr.GetStatus(fmt.Sprintf("s%d", i))
		require.True(t, ok)
		assert.Len(t, snap.Steps, steps)
		assert.Equal(t, StatusCompleted, snap.Status)
	}
}
