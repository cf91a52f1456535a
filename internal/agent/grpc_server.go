package agent

import (
	"context"
	"fmt"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCServer adapts a TaskService to the gRPC agent service.
type GRPCServer struct {
	svc TaskService
}

// NewGRPCServer creates the gRPC adapter.
func NewGRPCServer(svc TaskService) *GRPCServer {
	return &GRPCServer{svc: svc}
}

var _ a2a.AgentServiceServer = (*GRPCServer)(nil)

// SendMessage accepts a MessageSendParams struct and returns a Task struct.
func (g *GRPCServer) SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var params a2a.MessageSendParams
	if err := a2a.FromStruct(req, &params); err != nil {
		return nil, a2a.GRPCStatus(err)
	}
	return taskReply(g.svc.SendMessage(ctx, params.Message))
}

// GetTask accepts a TaskIDParams struct and returns a Task struct.
func (g *GRPCServer) GetTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(req)
	if err != nil {
		return nil, a2a.GRPCStatus(err)
	}
	return taskReply(g.svc.GetTask(ctx, id))
}

// CancelTask accepts a TaskIDParams struct and returns a Task struct.
func (g *GRPCServer) CancelTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(req)
	if err != nil {
		return nil, a2a.GRPCStatus(err)
	}
	return taskReply(g.svc.CancelTask(ctx, id))
}

func taskID(req *structpb.Struct) (string, error) {
	var params a2a.TaskIDParams
	if err := a2a.FromStruct(req, &params); err != nil {
		return "", err
	}
	if params.ID == "" {
		return "", fmt.Errorf("%w: id is required", a2a.ErrInvalidParams)
	}
	return params.ID, nil
}

func taskReply(task *a2a.Task, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, a2a.GRPCStatus(err)
	}
	s, err := a2a.ToStruct(task)
	if err != nil {
		return nil, a2a.GRPCStatus(err)
	}
	return s, nil
}
