package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/testutil"
)

// =============================================================================
// LOGGING INTERCEPTOR TESTS
// =============================================================================

func TestLoggingInterceptor_Success(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := LoggingInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Ok"}

	resp, err := interceptor(context.Background(), "request", info, func(context.Context, any) (any, error) {
		return "response", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "response", resp)
	assert.True(t, logger.HasLog("debug", "grpc_request_started"))
	assert.True(t, logger.HasLog("debug", "grpc_request_completed"))
}

func TestLoggingInterceptor_ErrorLevels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
		msg   string
	}{
		{"client error", status.Error(codes.NotFound, "missing"), "warn", "grpc_request_rejected"},
		{"server error", status.Error(codes.Internal, "boom"), "error", "grpc_request_failed"},
		{"plain error", errors.New("plain"), "error", "grpc_request_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := testutil.NewMockLogger()
			interceptor := LoggingInterceptor(logger)

			_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Err"},
				func(context.Context, any) (any, error) { return nil, tt.err })

			assert.Equal(t, tt.err, err)
			assert.True(t, logger.HasLog(tt.level, tt.msg))
		})
	}
}

// =============================================================================
// RECOVERY INTERCEPTOR TESTS
// =============================================================================

func TestRecoveryInterceptor_Panic(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := RecoveryInterceptor(logger, nil)

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Panic"},
		func(context.Context, any) (any, error) { panic("test panic value") })

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "test panic value")
	assert.True(t, logger.HasLog("error", "grpc_panic_recovered"))
}

func TestRecoveryInterceptor_CustomHandler(t *testing.T) {
	interceptor := RecoveryInterceptor(testutil.NewMockLogger(), func(p any) error {
		return status.Errorf(codes.Unavailable, "custom: %v", p)
	})

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"},
		func(context.Context, any) (any, error) { panic("oops") })
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestRecoveryInterceptor_NoPanic(t *testing.T) {
	interceptor := RecoveryInterceptor(testutil.NewMockLogger(), nil)

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"},
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

// =============================================================================
// STREAM INTERCEPTOR TESTS
// =============================================================================

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

func TestStreamInterceptors(t *testing.T) {
	logger := testutil.NewMockLogger()
	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/Watch", IsServerStream: true}
	stream := &mockServerStream{}

	err := StreamLoggingInterceptor(logger)(nil, stream, info, func(any, grpc.ServerStream) error { return nil })
	require.NoError(t, err)
	assert.True(t, logger.HasLog("debug", "grpc_stream_completed"))

	err = StreamRecoveryInterceptor(logger, nil)(nil, stream, info, func(any, grpc.ServerStream) error { panic("stream boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasLog("error", "grpc_stream_panic_recovered"))
}

func TestServerOptions(t *testing.T) {
	opts := ServerOptions(testutil.NewMockLogger())
	assert.Len(t, opts, 3)
}

func TestDefaultRecoveryHandler(t *testing.T) {
	err := DefaultRecoveryHandler("something bad")
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "something bad")
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

func TestEngineError(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: query required", graph.ErrInvalidRequest), codes.InvalidArgument},
		{fmt.Errorf("failed to create session: %w", session.ErrSessionInFlight), codes.AlreadyExists},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("hop limit"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(engineError(tt.err)), tt.err.Error())
	}
}
