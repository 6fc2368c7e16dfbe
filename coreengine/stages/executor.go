package stages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("assistant/stages")

// ErrCapabilityUnavailable is reported when a stage has no capability configured.
var ErrCapabilityUnavailable = errors.New("capability not configured")

// ErrStageTimeout is reported when a capability exceeds its timeout.
var ErrStageTimeout = errors.New("stage timed out")

// Status is the lifecycle status of a stage executor.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StageError wraps a failure absorbed at the executor boundary.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Func is the capability call wrapped by an Executor.
type Func[I, O any] func(ctx context.Context, in I) (O, error)

// FallbackFunc builds the degraded payload returned when the capability fails.
type FallbackFunc[I, O any] func(in I, err error) O

// Outcome is the result of Execute. Err is non-nil when Output is a fallback payload.
type Outcome[O any] struct {
	Output O
	Err    error
}

// Degraded reports whether Output is a fallback payload.
func (o Outcome[O]) Degraded() bool {
	return o.Err != nil
}

// Snapshot is a point-in-time view of an executor.
type Snapshot struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"last_activity"`
	LastError    string    `json:"last_error,omitempty"`
	Executions   int       `json:"executions"`
	Failures     int       `json:"failures"`
}

// Options configures executors.
type Options struct {
	// Timeout bounds every capability call; zero disables the bound.
	Timeout time.Duration
	// Timeouts overrides Timeout per stage name.
	Timeouts map[string]time.Duration
	Logger   observability.Logger
	Clock    func() time.Time
}

func (o Options) timeoutFor(stage string) time.Duration {
	if d, ok := o.Timeouts[stage]; ok {
		return d
	}
	return o.Timeout
}

// Executor wraps one capability behind the never-fail stage contract.
type Executor[I, O any] struct {
	name     string
	run      Func[I, O]
	fallback FallbackFunc[I, O]
	timeout  time.Duration
	logger   observability.Logger
	now      func() time.Time

	mu           sync.RWMutex
	status       Status
	lastActivity time.Time
	lastError    error
	executions   int
	failures     int
}

// NewExecutor creates an Executor. A nil run makes every call degrade.
func NewExecutor[I, O any](name string, run Func[I, O], fallback FallbackFunc[I, O], opts Options) *Executor[I, O] {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Executor[I, O]{
		name:     name,
		run:      run,
		fallback: fallback,
		timeout:  opts.timeoutFor(name),
		logger:   logger.Bind("stage", name),
		now:      now,
		status:   StatusIdle,
	}
}

// Name returns the stage name.
func (e *Executor[I, O]) Name() string {
	return e.name
}

// Status returns the current status.
func (e *Executor[I, O]) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastActivity returns when the executor last started or finished a call.
func (e *Executor[I, O]) LastActivity() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastActivity
}

// Snapshot returns a copy of the executor's bookkeeping.
func (e *Executor[I, O]) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Snapshot{
		Name:         e.name,
		Status:       e.status,
		LastActivity: e.lastActivity,
		Executions:   e.executions,
		Failures:     e.failures,
	}
	if e.lastError != nil {
		s.LastError = e.lastError.Error()
	}
	return s
}

// Execute runs the capability. It never panics and never returns a bare error:
// failures yield the fallback payload with Outcome.Err set.
func (e *Executor[I, O]) Execute(ctx context.Context, in I) Outcome[O] {
	ctx, span := tracer.Start(ctx, "stage.execute",
		trace.WithAttributes(attribute.String("assistant.stage.name", e.name)),
	)
	defer span.End()

	start := time.Now()
	e.begin()
	e.logger.Debug("stage_started")

	out, err := e.invoke(ctx, in)
	durationMS := int(time.Since(start).Milliseconds())
	span.SetAttributes(attribute.Int("duration_ms", durationMS))

	if err != nil {
		stageErr := &StageError{Stage: e.name, Err: err}
		e.finish(stageErr)
		observability.RecordStageExecution(e.name, "degraded", durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("stage_degraded", "error", err.Error(), "duration_ms", durationMS)
		return Outcome[O]{Output: e.fallback(in, err), Err: stageErr}
	}

	e.finish(nil)
	observability.RecordStageExecution(e.name, "success", durationMS)
	span.SetStatus(codes.Ok, "")
	e.logger.Debug("stage_completed", "duration_ms", durationMS)
	return Outcome[O]{Output: out}
}

type result[O any] struct {
	out O
	err error
}

// invoke runs the capability in its own goroutine so the timeout holds even
// when the capability ignores ctx.
func (e *Executor[I, O]) invoke(ctx context.Context, in I) (O, error) {
	var zero O
	if e.run == nil {
		return zero, ErrCapabilityUnavailable
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan result[O], 1)
	go func() {
		out, err := safeExecute(e.logger, e.name, func() (O, error) {
			return e.run(ctx, in)
		})
		done <- result[O]{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrStageTimeout, e.timeout)
		}
		return zero, ctx.Err()
	}
}

func (e *Executor[I, O]) begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusRunning
	e.lastActivity = e.now()
	e.executions++
}

func (e *Executor[I, O]) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = e.now()
	e.lastError = err
	if err != nil {
		e.status = StatusError
		e.failures++
		return
	}
	e.status = StatusCompleted
}
