package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// DefaultInvokeTimeout bounds a single tool call when none is configured.
const DefaultInvokeTimeout = 30 * time.Second

// Registry is an immutable set of named tools. It is built once and shared
// by every orchestration loop.
type Registry struct {
	tools   map[string]domain.Tool
	decls   []domain.ToolDeclaration
	timeout time.Duration
	logger  *slog.Logger
	audit   domain.AuditLogger
}

var _ domain.ToolInvoker = (*Registry)(nil)

// NewRegistry builds a registry from tools. Every tool is wrapped with JSON
// Schema validation of its arguments; a schema that fails to compile or a
// duplicate name is a construction error.
func NewRegistry(logger *slog.Logger, timeout time.Duration, tools ...domain.Tool) (*Registry, error) {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	r := &Registry{
		tools:   make(map[string]domain.Tool, len(tools)),
		timeout: timeout,
		logger:  logger,
	}
	for _, t := range tools {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool %q already registered", name)
		}
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			return nil, err
		}
		r.tools[name] = wrapped
		r.decls = append(r.decls, t.Declaration())
	}
	sort.Slice(r.decls, func(i, j int) bool { return r.decls[i].Name < r.decls[j].Name })
	return r, nil
}

// WithAudit records every invocation in a. Call it before the registry is
// shared.
func (r *Registry) WithAudit(a domain.AuditLogger) *Registry {
	r.audit = a
	return r
}

// Declarations returns the tool declarations sorted by name.
func (r *Registry) Declarations() []domain.ToolDeclaration {
	out := make([]domain.ToolDeclaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Names returns the registered tool names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.decls))
	for i, d := range r.decls {
		names[i] = d.Name
	}
	return names
}

type outcome struct {
	payload map[string]any
	err     error
}

// Invoke runs the named tool and always returns a result. Unknown tools,
// tool errors, panics and timeouts become error results so the conversation
// can continue.
func (r *Registry) Invoke(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	res := domain.ToolResult{CallID: call.ID, Name: call.Name}

	ctx, span := tracer.StartSpan(ctx, "tool.invoke",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()
	defer func() { r.record(ctx, call, res) }()

	t, ok := r.tools[call.Name]
	if !ok {
		res.Err = domain.NewToolError(domain.ToolErrUnknownTool, fmt.Sprintf("Unknown tool '%s'.", call.Name))
		tracer.RecordError(span, res.Err)
		r.logger.Warn("model requested unknown tool", "tool", call.Name)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		payload, err := t.Execute(ctx, call.Arguments)
		done <- outcome{payload: payload, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.err = domain.NewToolError(domain.ToolErrTimeout,
				fmt.Sprintf("Tool '%s' timed out after %s.", call.Name, r.timeout))
		} else {
			o.err = domain.NewToolError(domain.ToolErrInvocationFailed, "Tool call was canceled.")
		}
	}

	if o.err != nil {
		res.Err = domain.AsToolError(o.err)
		tracer.RecordError(span, o.err)
		r.logger.Warn("tool invocation failed",
			"tool", call.Name, "code", res.Err.Code, "error", res.Err.Message)
		return res
	}

	res.Payload = o.payload
	tracer.SetOK(span)
	return res
}

func (r *Registry) record(ctx context.Context, call domain.ToolCall, res domain.ToolResult) {
	if r.audit == nil {
		return
	}
	outcome := "success"
	if res.Err != nil {
		outcome = string(res.Err.Code)
	}
	err := r.audit.Log(ctx, domain.AuditEvent{
		Type:    domain.AuditToolExec,
		Actor:   domain.UserIDFromContext(ctx),
		Action:  call.Name,
		Outcome: outcome,
		Detail:  map[string]string{"call_id": call.ID},
	})
	if err != nil {
		r.logger.Warn("audit log write failed", "tool", call.Name, "error", err)
	}
}
