package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC service and method names. Payloads are google.protobuf.Struct values
// holding the same JSON objects the JSON-RPC transport carries.
const (
	GRPCServiceName       = "excelinterviewer.a2a.v1.AgentService"
	GRPCMethodSendMessage = "/" + GRPCServiceName + "/SendMessage"
	GRPCMethodGetTask     = "/" + GRPCServiceName + "/GetTask"
	GRPCMethodCancelTask  = "/" + GRPCServiceName + "/CancelTask"
)

// AgentServiceServer is the server API of the gRPC agent service.
type AgentServiceServer interface {
	SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAgentServiceServer registers srv on s.
func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&agentServiceDesc, srv)
}

func unaryHandler(method string, call func(AgentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var agentServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMessage",
			Handler:    unaryHandler(GRPCMethodSendMessage, AgentServiceServer.SendMessage),
		},
		{
			MethodName: "GetTask",
			Handler:    unaryHandler(GRPCMethodGetTask, AgentServiceServer.GetTask),
		},
		{
			MethodName: "CancelTask",
			Handler:    unaryHandler(GRPCMethodCancelTask, AgentServiceServer.CancelTask),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "excelinterviewer/a2a/v1/agent.proto",
}

// ToStruct converts a JSON-serialisable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidParams)
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// GRPCStatus converts a service error into a gRPC status error.
func GRPCStatus(err error) error {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrTaskNotCancelable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidParams):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCStatus maps a gRPC status error back to the shared sentinels.
func FromGRPCStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrTaskNotFound, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrTaskNotCancelable, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidParams, st.Message())
	default:
		return err
	}
}
