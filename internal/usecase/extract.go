package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// ExtractRequest describes one structured-extraction call.
type ExtractRequest struct {
	Files       []domain.Blob
	Schema      json.RawMessage
	Instruction string // system instruction; optional
	Message     string // free text sent after the files; optional
}

// Extractor turns documents into JSON matching a schema with a single,
// non-looping model request. It never touches the conversation store.
type Extractor struct {
	model   domain.ModelClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewExtractor creates an extractor. A non-positive timeout selects
// DefaultModelTimeout.
func NewExtractor(model domain.ModelClient, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &Extractor{model: model, timeout: timeout, logger: logger}
}

// Extract sends the files and message to the model constrained to JSON
// output, repairs the text to its outermost object and validates it
// against req.Schema.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (json.RawMessage, error) {
	ctx, span := tracer.StartSpan(ctx, "extract.run",
		trace.WithAttributes(tracer.IntAttr("extract.files", len(req.Files))),
	)
	defer span.End()

	if len(req.Schema) == 0 {
		err := fmt.Errorf("%w: schema is required", domain.ErrInvalidInput)
		tracer.RecordError(span, err)
		return nil, err
	}
	turn := domain.NewUserTurn(req.Message, req.Files)
	if len(turn.Parts) == 0 {
		err := fmt.Errorf("%w: nothing to extract from", domain.ErrInvalidInput)
		tracer.RecordError(span, err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.model.Generate(callCtx, domain.GenerateRequest{
		Contents:          []domain.Turn{turn},
		SystemInstruction: req.Instruction,
		ResponseSchema:    req.Schema,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if resp == nil {
		err = fmt.Errorf("%w: %w: nil response", domain.ErrModelUnavailable, domain.ErrMalformedResponse)
		tracer.RecordError(span, err)
		return nil, err
	}

	payload, err := repairJSON(resp.Text)
	if err != nil {
		tracer.RecordError(span, err)
		e.logger.Warn("extraction returned malformed output", "output", truncate(resp.Text, 200))
		return nil, err
	}

	var data any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := validateJSONSchema(req.Schema, data); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrSchemaValidationFailed, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	e.logger.Debug("extraction completed", "bytes", len(payload))
	return json.RawMessage(payload), nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// repairJSON strips code fences and keeps the text from the first "{" to
// the last "}" inclusive.
func repairJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in model output", domain.ErrMalformedResponse)
	}
	return s[start : end+1], nil
}

func validateJSONSchema(schemaBytes json.RawMessage, data any) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(schemaBytes))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// truncate shortens s to at most maxLen bytes on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
