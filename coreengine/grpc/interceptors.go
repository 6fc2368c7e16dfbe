package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// =============================================================================
// LOGGING + METRICS
// =============================================================================

// LoggingInterceptor logs every unary call and records grpc_requests_total.
func LoggingInterceptor(logger observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		logger.Debug("grpc_request_started", "method", info.FullMethod)

		resp, err := handler(ctx, req)
		observeCall(logger, "grpc_request", info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor is the streaming counterpart of LoggingInterceptor.
func StreamLoggingInterceptor(logger observability.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("grpc_stream_started",
			"method", info.FullMethod,
			"server_stream", info.IsServerStream,
		)

		err := handler(srv, ss)
		observeCall(logger, "grpc_stream", info.FullMethod, start, err)
		return err
	}
}

func observeCall(logger observability.Logger, kind, method string, start time.Time, err error) {
	durationMS := int(time.Since(start).Milliseconds())
	code := status.Code(err)
	observability.RecordGRPCRequest(method, code.String(), durationMS)

	switch {
	case err == nil:
		logger.Debug(kind+"_completed", "method", method, "duration_ms", durationMS)
	case isClientError(code):
		logger.Warn(kind+"_rejected",
			"method", method,
			"duration_ms", durationMS,
			"code", code.String(),
			"error", err.Error(),
		)
	default:
		logger.Error(kind+"_failed",
			"method", method,
			"duration_ms", durationMS,
			"code", code.String(),
			"error", err.Error(),
		)
	}
}

func isClientError(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.Canceled, codes.AlreadyExists:
		return true
	}
	return false
}

// =============================================================================
// RECOVERY
// =============================================================================

// RecoveryHandler turns a recovered panic value into the RPC error.
type RecoveryHandler func(p any) error

// DefaultRecoveryHandler returns codes.Internal.
func DefaultRecoveryHandler(p any) error {
	return status.Errorf(codes.Internal, "panic recovered: %v", p)
}

// RecoveryInterceptor converts handler panics into errors.
func RecoveryInterceptor(logger observability.Logger, handler RecoveryHandler) grpc.UnaryServerInterceptor {
	if handler == nil {
		handler = DefaultRecoveryHandler
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("grpc_panic_recovered",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", p),
					"stack", string(debug.Stack()),
				)
				err = handler(p)
			}
		}()
		return next(ctx, req)
	}
}

// StreamRecoveryInterceptor converts stream handler panics into errors.
func StreamRecoveryInterceptor(logger observability.Logger, handler RecoveryHandler) grpc.StreamServerInterceptor {
	if handler == nil {
		handler = DefaultRecoveryHandler
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("grpc_stream_panic_recovered",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", p),
					"stack", string(debug.Stack()),
				)
				err = handler(p)
			}
		}()
		return next(srv, ss)
	}
}

// =============================================================================
// SERVER OPTIONS
// =============================================================================

// ServerOptions returns the standard interceptor chain plus the otelgrpc
// stats handler. Logging wraps recovery so recovered panics are counted.
func ServerOptions(logger observability.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(logger),
			RecoveryInterceptor(logger, nil),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(logger),
			StreamRecoveryInterceptor(logger, nil),
		),
	}
}
