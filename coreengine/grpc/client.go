package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// Client is a typed AssistantService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Process runs a request on the server.
func (c *Client) Process(ctx context.Context, req state.Request, opts ...grpc.CallOption) (*ProcessResponse, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodProcess, in, out, opts...); err != nil {
		return nil, err
	}
	var resp ProcessResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatus fetches a session snapshot.
func (c *Client) GetStatus(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*session.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetStatus, wrapperspb.String(sessionID), out, opts...); err != nil {
		return nil, err
	}
	var snap session.Snapshot
	if err := fromStruct(out, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Cancel asks the server to stop a running session.
func (c *Client) Cancel(ctx context.Context, sessionID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodCancel, wrapperspb.String(sessionID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// ListSessions lists tracked sessions.
func (c *Client) ListSessions(ctx context.Context, opts ...grpc.CallOption) ([]session.Snapshot, error) {
	var out []session.Snapshot
	if err := c.list(ctx, MethodListSessions, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStages lists stage executor snapshots.
func (c *Client) ListStages(ctx context.Context, opts ...grpc.CallOption) ([]stages.Snapshot, error) {
	var out []stages.Snapshot
	if err := c.list(ctx, MethodListStages, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, method string, v any, opts ...grpc.CallOption) error {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out, opts...); err != nil {
		return err
	}
	return roundTrip(out.AsSlice(), v)
}

// WatchSession calls fn for every snapshot the server streams until the
// session reaches a terminal status.
func (c *Client) WatchSession(ctx context.Context, sessionID string, fn func(session.Snapshot), opts ...grpc.CallOption) error {
	stream, err := c.cc.NewStream(ctx, &AssistantServiceDesc.Streams[0], MethodWatchSession, opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(wrapperspb.String(sessionID)); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var snap session.Snapshot
		if err := fromStruct(msg, &snap); err != nil {
			return err
		}
		fn(snap)
	}
}
