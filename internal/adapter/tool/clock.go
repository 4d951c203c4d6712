package tool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

func (s *StudyTools) currentTime() domain.Tool {
	return NewFunc("get_current_utc_time",
		"Gets the current time in UTC as an ISO 8601 string, e.g. {\"utc_time\": \"2023-10-27T10:00:00.123456Z\"}.",
		noParamsSchema, s.logger,
		func(_ context.Context, _ trace.Span, _ noParams) (map[string]any, error) {
			return map[string]any{"utc_time": s.now().UTC().Format(time.RFC3339Nano)}, nil
		})
}
