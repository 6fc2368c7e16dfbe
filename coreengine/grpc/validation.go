package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
)

// validateRequired returns InvalidArgument when field is empty.
func validateRequired(field, fieldName string) error {
	if field == "" {
		return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
	}
	return nil
}

// =============================================================================
// STATUS BUILDERS
// =============================================================================

// InvalidArgument reports a malformed request.
func InvalidArgument(what string, cause error) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %v", what, cause)
}

// NotFound reports a missing resource.
func NotFound(resourceType, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resourceType, id)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// FailedPrecondition reports an operation the resource's state does not allow.
func FailedPrecondition(resource, currentState, attemptedAction string) error {
	return status.Errorf(codes.FailedPrecondition,
		"%s in state %s cannot %s", resource, currentState, attemptedAction)
}

// AlreadyExists reports a duplicate resource.
func AlreadyExists(resourceType, detail string) error {
	return status.Errorf(codes.AlreadyExists, "%s already exists: %s", resourceType, detail)
}

// engineError maps a Process failure onto a gRPC status.
func engineError(err error) error {
	switch {
	case errors.Is(err, graph.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrSessionInFlight):
		return AlreadyExists("session", err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return Internal("process", err)
	}
}
