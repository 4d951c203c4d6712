package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

// Handler is the body of a single-purpose tool with typed params P.
type Handler[P any] func(ctx context.Context, span trace.Span, p P) (map[string]any, error)

// Func adapts a declaration plus a typed handler to domain.Tool.
//
// Usage:
//
//	NewFunc("delete_event", "Deletes an event.", deleteEventSchema, logger,
//	    func(ctx context.Context, span trace.Span, p deleteEventParams) (map[string]any, error) {
//	        ...
//	    })
type Func[P any] struct {
	name        string
	description string
	params      json.RawMessage
	handler     Handler[P]
	logger      *slog.Logger
}

// NewFunc creates a tool. params is the JSON Schema of P.
func NewFunc[P any](name, description, params string, logger *slog.Logger, h Handler[P]) *Func[P] {
	return &Func[P]{
		name:        name,
		description: description,
		params:      json.RawMessage(params),
		handler:     h,
		logger:      logger,
	}
}

func (f *Func[P]) Name() string        { return f.name }
func (f *Func[P]) Description() string { return f.description }

func (f *Func[P]) Declaration() domain.ToolDeclaration {
	return domain.ToolDeclaration{
		Name:        f.name,
		Description: f.description,
		Parameters:  f.params,
	}
}

func (f *Func[P]) Execute(ctx context.Context, args json.RawMessage) (map[string]any, error) {
	return Execute(ctx, "tool."+f.name, f.logger, args, f.handler)
}

// noParams is the argument struct of tools that take no arguments.
type noParams struct{}

const noParamsSchema = `{"type": "object", "properties": {}, "additionalProperties": false}`
