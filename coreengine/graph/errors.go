package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by Process when traversal stopped at a node
	// boundary because the session or context was cancelled.
	ErrCancelled = errors.New("workflow cancelled")

	// ErrInvalidRequest is returned by Process for requests failing validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrOrchestration marks failures of the engine itself.
	ErrOrchestration = errors.New("orchestration failure")

	// ErrHopLimitExceeded is returned when traversal exceeds the hop bound.
	ErrHopLimitExceeded = errors.New("hop limit exceeded")
)

// RoutingError reports a node without a valid successor. It is a
// configuration error: the graph is built wrong, not a runtime condition.
type RoutingError struct {
	From   NodeID
	To     NodeID
	Reason string
}

func (e *RoutingError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("routing failure at %s: %s", e.From, e.Reason)
	}
	return fmt.Sprintf("routing failure %s -> %s: %s", e.From, e.To, e.Reason)
}

// Unwrap lets errors.Is(err, ErrOrchestration) match routing failures.
func (e *RoutingError) Unwrap() error {
	return ErrOrchestration
}
