// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/n-krueger/faabric/lib/mpi"
)

// Server is implemented by whatever process hosts an executor pool
// and/or MPI worlds: the scheduler's function-call client and the MPI
// transport both dial into this service on a peer.
type Server interface {
	RequestResources(ctx context.Context, req *ResourceRequest) (*ResourceResponse, error)
	ForwardBatch(ctx context.Context, req *ForwardBatchRequest) (*ForwardBatchResponse, error)
	SendMpiMessage(ctx context.Context, msg *mpi.Message) (*Ack, error)
	PushSnapshot(ctx context.Context, req *PushSnapshotRequest) (*Ack, error)
	DeleteSnapshot(ctx context.Context, req *DeleteSnapshotRequest) (*Ack, error)
}

const serviceName = "faabric.Transport"

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func _Transport_RequestResources_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResourceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).RequestResources(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("RequestResources")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).RequestResources(ctx, req.(*ResourceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_ForwardBatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ForwardBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ForwardBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ForwardBatch")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).ForwardBatch(ctx, req.(*ForwardBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendMpiMessage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(mpi.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SendMpiMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("SendMpiMessage")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).SendMpiMessage(ctx, req.(*mpi.Message))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_PushSnapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PushSnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).PushSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("PushSnapshot")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).PushSnapshot(ctx, req.(*PushSnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_DeleteSnapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteSnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).DeleteSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("DeleteSnapshot")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).DeleteSnapshot(ctx, req.(*DeleteSnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would generate from a .proto file declaring the same five RPCs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestResources", Handler: _Transport_RequestResources_Handler},
		{MethodName: "ForwardBatch", Handler: _Transport_ForwardBatch_Handler},
		{MethodName: "SendMpiMessage", Handler: _Transport_SendMpiMessage_Handler},
		{MethodName: "PushSnapshot", Handler: _Transport_PushSnapshot_Handler},
		{MethodName: "DeleteSnapshot", Handler: _Transport_DeleteSnapshot_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lib/transport/service.go",
}

// RegisterServer attaches srv to s under ServiceDesc.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
