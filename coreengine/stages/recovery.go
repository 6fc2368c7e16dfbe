package stages

import (
	"fmt"
	"runtime/debug"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// PanicError is returned when a capability panics.
type PanicError struct {
	Stage string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Stage, e.Value)
}

// safeExecute runs fn with panic recovery and returns both result and error.
func safeExecute[T any](logger observability.Logger, stage string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic_recovered",
				"stage", stage,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = &PanicError{Stage: stage, Value: r}
		}
	}()
	return fn()
}
