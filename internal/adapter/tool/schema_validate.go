package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"planit/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
// On Execute, it validates arguments against the compiled schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates arguments against
// the tool's declared parameter schema before forwarding to the inner tool.
// Returns error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Declaration().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string                        { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string                 { return s.inner.Description() }
func (s *SchemaValidatingTool) Declaration() domain.ToolDeclaration { return s.inner.Declaration() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, args json.RawMessage) (map[string]any, error) {
	raw := bytes.TrimSpace(args)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, Invalid("invalid JSON arguments: %v", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return nil, Invalid("arguments do not match schema: %v", err)
	}

	return s.inner.Execute(ctx, raw)
}
