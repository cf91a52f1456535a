package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC method names.
const (
	MethodSendMessage = "message/send"
	MethodGetTask     = "tasks/get"
	MethodCancelTask  = "tasks/cancel"
)

// JSON-RPC error codes.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeTaskNotFound      = -32001
	CodeTaskNotCancelable = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Result is left raw on the client side.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps protocol codes back to the shared sentinel errors.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case CodeTaskNotFound:
		return ErrTaskNotFound
	case CodeTaskNotCancelable:
		return ErrTaskNotCancelable
	case CodeInvalidParams:
		return ErrInvalidParams
	}
	return nil
}

// ErrorFor converts a service error into a JSON-RPC error.
func ErrorFor(err error) *RPCError {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return &RPCError{Code: CodeTaskNotFound, Message: "Task not found"}
	case errors.Is(err, ErrTaskNotCancelable):
		return &RPCError{Code: CodeTaskNotCancelable, Message: "Task cannot be canceled"}
	case errors.Is(err, ErrInvalidParams):
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: CodeInternalError, Message: "Internal error"}
	}
}
