package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// DefaultGeminiModel is used when the configuration names no model.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// ConnTimeout and RespTimeout tune the pooled HTTP transport.
	ConnTimeout time.Duration
	RespTimeout time.Duration
	Pool        PooledTransportConfig
}

// GeminiClient implements domain.ModelClient on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ domain.ModelClient = (*GeminiClient)(nil)

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: api key is required", domain.ErrAuthInvalid)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: NewHTTPClient(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

// Name implements domain.ModelClient.
func (g *GeminiClient) Name() string { return "gemini" }

// Model returns the model identifier requests are sent to.
func (g *GeminiClient) Model() string { return g.model }

// Generate implements domain.ModelClient.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.ModelResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", g.Name()),
			tracer.StringAttr("llm.model", g.model),
			tracer.IntAttr("llm.turns", len(req.Contents)),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	contents, err := toGenaiContents(req.Contents)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, toGenaiConfig(req))
	if err != nil {
		err = mapGenaiError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result, err := fromGenaiResponse(resp)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if resp.UsageMetadata != nil {
		setUsageAttrs(span, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	tracer.SetOK(span)
	g.logger.Debug("llm generate completed",
		"model", g.model,
		"function_calls", len(result.FunctionCalls),
	)
	return result, nil
}

func toGenaiConfig(req domain.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}
	if len(req.ResponseSchema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.ResponseSchema
	}
	return cfg
}

func toGenaiContents(turns []domain.Turn) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(turns))
	for i, t := range turns {
		c := &genai.Content{Role: t.Role, Parts: make([]*genai.Part, 0, len(t.Parts))}
		for _, p := range t.Parts {
			switch {
			case p.FunctionCall != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   p.FunctionCall.ID,
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}})
			case p.FunctionResult != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.FunctionResult.ID,
					Name:     p.FunctionResult.Name,
					Response: p.FunctionResult.Response,
				}})
			case p.Blob != nil:
				c.Parts = append(c.Parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: p.Blob.MIMEType,
					Data:     p.Blob.Data,
				}})
			case p.Text != "":
				c.Parts = append(c.Parts, &genai.Part{Text: p.Text})
			}
			if len(p.ThoughtSignature) > 0 && len(c.Parts) > 0 {
				c.Parts[len(c.Parts)-1].ThoughtSignature = p.ThoughtSignature
			}
		}
		if len(c.Parts) == 0 {
			return nil, fmt.Errorf("turn %d (%s) has no content: %w", i, t.Role, domain.ErrInvalidInput)
		}
		out = append(out, c)
	}
	return out, nil
}

// fromGenaiResponse keeps the first candidate. A candidate with function
// calls is a tool round; otherwise its text is the answer.
func fromGenaiResponse(resp *genai.GenerateContentResponse) (*domain.ModelResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedResponse, reason)
	}

	content := resp.Candidates[0].Content
	turn := domain.Turn{Role: domain.RoleModel}
	var calls []domain.FunctionCall
	var text strings.Builder
	for _, p := range content.Parts {
		if p == nil {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			fc := domain.FunctionCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
			calls = append(calls, fc)
			turn.Parts = append(turn.Parts, domain.Part{FunctionCall: &fc, ThoughtSignature: p.ThoughtSignature})
		case p.Thought:
			// Reasoning summaries are not part of the answer.
		case p.Text != "":
			text.WriteString(p.Text)
			turn.Parts = append(turn.Parts, domain.Part{Text: p.Text, ThoughtSignature: p.ThoughtSignature})
		}
	}
	return &domain.ModelResponse{Text: text.String(), FunctionCalls: calls, Turn: turn}, nil
}

// mapGenaiError classifies API failures by HTTP status.
func mapGenaiError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := any(e).(type) {
		case genai.APIError:
			return mapHTTPError(v.Code, v.Message, err)
		case *genai.APIError:
			if v != nil {
				return mapHTTPError(v.Code, v.Message, err)
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("gemini request: %w", err)
}
