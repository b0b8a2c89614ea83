// Package control exposes the syncer's on-demand operations over gRPC.
//
// The service is rulesync.v1.Control:
//
//	service Control {
//	  rpc Sync(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Reload(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
//
// It is registered by hand with well-known message types, so no generated
// code is needed. A cycle that ends in a failure state is still a successful
// RPC: callers inspect the "state" and "error" fields of the returned Struct.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "rulesync.v1.Control"
	SyncFullMethod   = "/" + ServiceName + "/Sync"
	ReloadFullMethod = "/" + ServiceName + "/Reload"
)

// ControlServer is the server API for the Control service.
type ControlServer interface {
	Sync(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reload(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterControlServer registers srv with s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the Control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sync", Handler: syncHandler},
		{MethodName: "Reload", Handler: reloadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulesync/v1/control.proto",
}

func syncHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Sync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SyncFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Sync(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func reloadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Reload(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReloadFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Reload(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the Control service over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Sync asks the syncer to run one cycle and returns its result.
func (c *Client) Sync(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SyncFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reload asks the syncer to reload the detection engine.
func (c *Client) Reload(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReloadFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// toStruct converts any JSON-serializable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return structpb.NewStruct(m)
}
