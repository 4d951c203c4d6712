package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: decode args -> start trace -> run handler -> result.
//
// The handler receives the decoded params and an active trace span. It returns
// the success payload, or an error. A *domain.ToolError keeps its reason code;
// errors wrapping domain.ErrNotFound or domain.ErrInvalidInput are classified,
// anything else is reported as invocation_failed.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (map[string]any, error),
) (map[string]any, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, err := DecodeArgs[P](rawParams)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return nil, classify(err)
	}

	tracer.SetOK(span)
	return result, nil
}

// DecodeArgs strictly decodes raw tool arguments into P. Unknown fields and
// trailing data are rejected; empty arguments decode as {}.
func DecodeArgs[P any](raw json.RawMessage) (P, error) {
	var p P
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, domain.NewToolError(domain.ToolErrInvalidArguments, fmt.Sprintf("invalid arguments: %v", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return p, domain.NewToolError(domain.ToolErrInvalidArguments, "invalid arguments: trailing data")
	}
	return p, nil
}

// classify maps handler errors onto tool error codes.
func classify(err error) error {
	var te *domain.ToolError
	switch {
	case errors.As(err, &te):
		return te
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewToolError(domain.ToolErrNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.NewToolError(domain.ToolErrInvalidArguments, err.Error())
	default:
		return domain.NewToolError(domain.ToolErrInvocationFailed, err.Error())
	}
}

// Invalid returns an invalid_arguments error for handlers.
func Invalid(format string, args ...any) error {
	return domain.NewToolError(domain.ToolErrInvalidArguments, fmt.Sprintf(format, args...))
}

// NotFound maps a store ErrNotFound to a not_found tool error with msg, and
// wraps any other error as "<action>: <err>".
func NotFound(err error, msg, action string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewToolError(domain.ToolErrNotFound, msg)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// ownerID returns the authenticated user carried by ctx.
func ownerID(ctx context.Context) (string, error) {
	id := domain.UserIDFromContext(ctx)
	if id == "" {
		return "", domain.NewToolError(domain.ToolErrUnauthorized, "User not authorized.")
	}
	return id, nil
}

// toAny round-trips v through JSON so payloads use the entities' wire names.
func toAny(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return out, nil
}

// Success builds the {"success": true, key: value} payload.
func Success(key string, value any) (map[string]any, error) {
	v, err := toAny(value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, key: v}, nil
}
