package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// ToolDeclaration describes a tool for the function-calling protocol.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is one tool invocation requested by the model in a round.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorCode classifies why a tool invocation did not succeed.
type ToolErrorCode string

const (
	ToolErrUnknownTool      ToolErrorCode = "unknown_tool"
	ToolErrInvalidArguments ToolErrorCode = "invalid_arguments"
	ToolErrNotFound         ToolErrorCode = "not_found"
	ToolErrUnauthorized     ToolErrorCode = "unauthorized"
	ToolErrTimeout          ToolErrorCode = "timeout"
	ToolErrInvocationFailed ToolErrorCode = "invocation_failed"
)

// ToolError is the failure variant of a tool result.
type ToolError struct {
	Code    ToolErrorCode
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Unwrap maps the reason code onto the domain sentinels so callers can use errors.Is.
func (e *ToolError) Unwrap() error {
	if e.Code == ToolErrUnknownTool {
		return ErrUnknownTool
	}
	return ErrToolInvocationFailed
}

// NewToolError creates a ToolError.
func NewToolError(code ToolErrorCode, msg string) *ToolError {
	return &ToolError{Code: code, Message: msg}
}

// AsToolError converts err into a ToolError, defaulting to invocation_failed.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return NewToolError(ToolErrInvocationFailed, err.Error())
}

// ToolResult is the outcome of one tool call: either Payload or Err is set.
type ToolResult struct {
	CallID  string
	Name    string
	Payload map[string]any
	Err     *ToolError
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool { return r.Err == nil }

// Response returns the mapping fed back to the model. Failures always
// carry an "error" key.
func (r ToolResult) Response() map[string]any {
	if r.Err != nil {
		return map[string]any{
			"error": r.Err.Message,
			"code":  string(r.Err.Code),
		}
	}
	if r.Payload == nil {
		return map[string]any{}
	}
	return r.Payload
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Declaration() ToolDeclaration
	// Execute runs the tool. A returned *ToolError keeps its reason code;
	// any other error is reported as invocation_failed.
	Execute(ctx context.Context, args json.RawMessage) (map[string]any, error)
}

// ToolInvoker exposes declarations and dispatch-by-name.
type ToolInvoker interface {
	Declarations() []ToolDeclaration
	Invoke(ctx context.Context, call ToolCall) ToolResult
}
