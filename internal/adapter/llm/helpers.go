package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", promptTokens),
		tracer.IntAttr("llm.completion_tokens", completionTokens),
	)
}

// mapHTTPError maps an API status code to a domain error so the circuit
// breaker and the HTTP layer can classify model failures.
func mapHTTPError(statusCode int, message string, cause error) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, message)

	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		return fmt.Errorf("%w: %s", domain.ErrContextTooLarge, detail)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	default:
		return fmt.Errorf("%s: %w", detail, cause)
	}
}

// isTransient reports whether err should count against the circuit breaker.
// Client mistakes (bad auth, oversized context, malformed output) say
// nothing about backend health.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case domain.IsRetryableError(err):
		return true
	case errors.Is(err, domain.ErrAuthInvalid),
		errors.Is(err, domain.ErrContextTooLarge),
		errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
