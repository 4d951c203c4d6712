package domain

import (
	"context"
	"encoding/json"
)

// GenerateRequest is one call to the generative model.
type GenerateRequest struct {
	Contents          []Turn
	SystemInstruction string
	Tools             []ToolDeclaration
	// ResponseSchema constrains the output to JSON matching this schema.
	ResponseSchema json.RawMessage
}

// ModelResponse is either final text or a batch of function calls.
type ModelResponse struct {
	Text          string
	FunctionCalls []FunctionCall
	// Turn is the model's turn as returned, appended to the working context
	// when the response requests tools.
	Turn Turn
}

// ModelClient is the interface for the generative-model backend.
type ModelClient interface {
	Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error)
	// Name returns the backend identifier (e.g., "gemini").
	Name() string
}
