// Package grpc exposes the workflow engine as the AssistantService gRPC API.
//
// Messages use the well-known protobuf types (structpb, wrapperspb, emptypb)
// so the service needs no generated code; the JSON field names of the Go
// types are the wire contract.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "assistant.v1.AssistantService"

// Full method names.
const (
	MethodProcess      = "/" + ServiceName + "/Process"
	MethodGetStatus    = "/" + ServiceName + "/GetStatus"
	MethodCancel       = "/" + ServiceName + "/Cancel"
	MethodListSessions = "/" + ServiceName + "/ListSessions"
	MethodListStages   = "/" + ServiceName + "/ListStages"
	MethodWatchSession = "/" + ServiceName + "/WatchSession"
)

// Process response statuses.
const (
	ProcessStatusCompleted = "completed"
	ProcessStatusCancelled = "cancelled"
)

// DefaultWatchInterval is how often WatchSession polls the tracker.
const DefaultWatchInterval = 100 * time.Millisecond

// AssistantService is the server API.
type AssistantService interface {
	Process(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Cancel(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListStages(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	WatchSession(*wrapperspb.StringValue, WatchSessionStream) error
}

// WatchSessionStream is the server side of the WatchSession stream.
type WatchSessionStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// Engine runs workflows.
type Engine interface {
	Process(ctx context.Context, req state.Request) (*state.WorkflowState, error)
	Stages() []stages.Snapshot
}

// Sessions is the progress store queried by the service.
type Sessions interface {
	GetStatus(sessionID string) (session.Snapshot, bool)
	Cancel(sessionID string) bool
	List() []session.Snapshot
}

// ProcessResponse is the JSON shape of a Process reply.
type ProcessResponse struct {
	SessionID string                 `json:"session_id"`
	Status    string                 `json:"status"`
	Result    *state.FinalResult     `json:"result,omitempty"`
	Steps     []state.ProcessingStep `json:"steps"`
}

// AssistantServer implements AssistantService.
type AssistantServer struct {
	engine        Engine
	sessions      Sessions
	logger        observability.Logger
	watchInterval time.Duration
}

// NewAssistantServer creates the service.
func NewAssistantServer(engine Engine, sessions Sessions, logger observability.Logger) *AssistantServer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &AssistantServer{
		engine:        engine,
		sessions:      sessions,
		logger:        logger,
		watchInterval: DefaultWatchInterval,
	}
}

// WithWatchInterval overrides the WatchSession polling interval.
func (s *AssistantServer) WithWatchInterval(d time.Duration) *AssistantServer {
	if d > 0 {
		s.watchInterval = d
	}
	return s
}

// Process runs one request to completion. A cancelled workflow is not an
// RPC error; the reply carries status "cancelled" and the partial steps.
func (s *AssistantServer) Process(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req state.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, InvalidArgument("request", err)
	}

	ws, err := s.engine.Process(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, graph.ErrCancelled):
		s.logger.Info("process_cancelled", "session_id", ws.SessionID)
		return toStruct(ProcessResponse{
			SessionID: ws.SessionID,
			Status:    ProcessStatusCancelled,
			Steps:     ws.ProcessingSteps,
		})
	default:
		return nil, engineError(err)
	}

	return toStruct(ProcessResponse{
		SessionID: ws.SessionID,
		Status:    ProcessStatusCompleted,
		Result:    ws.FinalResult,
		Steps:     ws.ProcessingSteps,
	})
}

// GetStatus returns the session snapshot.
func (s *AssistantServer) GetStatus(_ context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if err := validateRequired(id, "session_id"); err != nil {
		return nil, err
	}
	snap, ok := s.sessions.GetStatus(id)
	if !ok {
		return nil, NotFound("session", id)
	}
	return toStruct(snap)
}

// Cancel requests cooperative cancellation of a running session.
func (s *AssistantServer) Cancel(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	id := in.GetValue()
	if err := validateRequired(id, "session_id"); err != nil {
		return nil, err
	}
	snap, ok := s.sessions.GetStatus(id)
	if !ok {
		return nil, NotFound("session", id)
	}
	if snap.Status.IsTerminal() && snap.Status != session.StatusCancelled {
		return nil, FailedPrecondition("session "+id, string(snap.Status), "cancel")
	}
	return wrapperspb.Bool(s.sessions.Cancel(id)), nil
}

// ListSessions returns every tracked session, newest first.
func (s *AssistantServer) ListSessions(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return toList(s.sessions.List())
}

// ListStages returns the status of every stage executor.
func (s *AssistantServer) ListStages(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return toList(s.engine.Stages())
}

// WatchSession streams a snapshot whenever the session changes and returns
// once it reaches a terminal status.
func (s *AssistantServer) WatchSession(in *wrapperspb.StringValue, stream WatchSessionStream) error {
	id := in.GetValue()
	if err := validateRequired(id, "session_id"); err != nil {
		return err
	}

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	type version struct {
		status  session.Status
		steps   int
		updated time.Time
	}
	var last *version
	for {
		snap, ok := s.sessions.GetStatus(id)
		if !ok {
			return NotFound("session", id)
		}
		v := version{snap.Status, len(snap.Steps), snap.UpdatedAt}
		if last == nil || *last != v {
			msg, err := toStruct(snap)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			last = &v
		}
		if snap.Status.IsTerminal() {
			return nil
		}

		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// SERVICE DESCRIPTOR
// =============================================================================

// AssistantServiceDesc describes AssistantService for grpc.Server.RegisterService.
var AssistantServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssistantService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Process", newStruct, AssistantService.Process),
		unary("GetStatus", newString, AssistantService.GetStatus),
		unary("Cancel", newString, AssistantService.Cancel),
		unary("ListSessions", newEmpty, AssistantService.ListSessions),
		unary("ListStages", newEmpty, AssistantService.ListStages),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSession",
			Handler:       watchSessionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "assistant/v1/assistant.proto",
}

// RegisterAssistantServiceServer registers srv on s.
func RegisterAssistantServiceServer(s grpc.ServiceRegistrar, srv AssistantService) {
	s.RegisterService(&AssistantServiceDesc, srv)
}

func unary[Req, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(AssistantService, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			invoke := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AssistantService), ctx, req.(Req))
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, invoke)
		},
	}
}

func newStruct() *structpb.Struct        { return &structpb.Struct{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }

func watchSessionHandler(srv any, stream grpc.ServerStream) error {
	in := newString()
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AssistantService).WatchSession(in, &watchSessionServer{stream})
}

type watchSessionServer struct {
	grpc.ServerStream
}

func (x *watchSessionServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// =============================================================================
// JSON <-> STRUCT
// =============================================================================

func toStruct(v any) (*structpb.Struct, error) {
	var m map[string]any
	if err := roundTrip(v, &m); err != nil {
		return nil, Internal("encode response", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, Internal("encode response", err)
	}
	return out, nil
}

func toList[T any](items []T) (*structpb.ListValue, error) {
	values := make([]any, 0, len(items))
	if err := roundTrip(items, &values); err != nil {
		return nil, Internal("encode response", err)
	}
	out, err := structpb.NewList(values)
	if err != nil {
		return nil, Internal("encode response", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	return roundTrip(in.AsMap(), v)
}

func roundTrip(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
