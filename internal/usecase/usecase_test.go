package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"planit/internal/domain"
)

// --- Mocks ---

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel answers call i with steps[i]; calls past the script
// repeat the last step.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []func(ctx context.Context, req domain.GenerateRequest) (*domain.ModelResponse, error)
	requests []domain.GenerateRequest
}

func (m *scriptedModel) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.ModelResponse, error) {
	m.mu.Lock()
	contents := make([]domain.Turn, len(req.Contents))
	copy(contents, req.Contents)
	req.Contents = contents
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	if idx >= len(m.steps) {
		idx = len(m.steps) - 1
	}
	step := m.steps[idx]
	m.mu.Unlock()
	return step(ctx, req)
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) request(i int) domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func answer(text string) func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
	return func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
		return &domain.ModelResponse{Text: text, Turn: domain.NewModelTextTurn(text)}, nil
	}
}

func callTools(calls ...domain.FunctionCall) func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
	return func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
		return &domain.ModelResponse{FunctionCalls: calls, Turn: callTurn(calls)}, nil
	}
}

func fail(err error) func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
	return func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error) {
		return nil, err
	}
}

// fakeInvoker records calls and answers with fn.
type fakeInvoker struct {
	decls []domain.ToolDeclaration
	fn    func(ctx context.Context, call domain.ToolCall) domain.ToolResult

	mu    sync.Mutex
	calls []domain.ToolCall
}

func (f *fakeInvoker) Declarations() []domain.ToolDeclaration { return f.decls }

func (f *fakeInvoker) Invoke(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.fn == nil {
		return domain.ToolResult{CallID: call.ID, Name: call.Name, Payload: map[string]any{"success": true}}
	}
	return f.fn(ctx, call)
}

func (f *fakeInvoker) invoked() []domain.ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ToolCall(nil), f.calls...)
}

// memTurns is an in-memory domain.ContextStore.
type memTurns struct {
	mu        sync.Mutex
	turns     map[string][]domain.Turn
	appendErr error
	appends   int
}

func newMemTurns() *memTurns {
	return &memTurns{turns: make(map[string][]domain.Turn)}
}

func (m *memTurns) ReadTurns(_ context.Context, ownerID string) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn{}, m.turns[ownerID]...), nil
}

func (m *memTurns) AppendTurns(_ context.Context, ownerID string, turns []domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appends++
	m.turns[ownerID] = append(m.turns[ownerID], turns...)
	return nil
}

func (m *memTurns) ClearTurns(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, ownerID)
	return nil
}

// lastResults returns the function results of the final turn of req.
func lastResults(req domain.GenerateRequest) []domain.FunctionResult {
	last := req.Contents[len(req.Contents)-1]
	var out []domain.FunctionResult
	for _, p := range last.Parts {
		if p.FunctionResult != nil {
			out = append(out, *p.FunctionResult)
		}
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
