package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// Orchestrator defaults.
const (
	DefaultMaxIterations = 10
	DefaultModelTimeout  = 60 * time.Second
)

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	Model             domain.ModelClient
	Tools             domain.ToolInvoker
	Budgeter          *ContextBudgeter
	SystemInstruction string
	Logger            *slog.Logger
	MaxIterations     int           // tool rounds before giving up
	ModelTimeout      time.Duration // per model call
}

// Exchange is the outcome of one user message: the reply and the turns to
// persist (the user turn and the model's final answer).
type Exchange struct {
	Reply string
	Turns []domain.Turn
}

// Orchestrator runs the model/tool loop for one user message.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	if deps.ModelTimeout <= 0 {
		deps.ModelTimeout = DefaultModelTimeout
	}
	if deps.Budgeter == nil {
		deps.Budgeter = NewContextBudgeter(0, deps.Logger)
	}
	return &Orchestrator{deps: deps}
}

// Run answers userTurn given the prior conversation. history is never
// modified. Tool failures are fed back to the model; model failures end
// the run and nothing is returned for persistence.
func (o *Orchestrator) Run(ctx context.Context, history []domain.Turn, userTurn domain.Turn) (*Exchange, error) {
	working := make([]domain.Turn, 0, len(history)+1+2*o.deps.MaxIterations)
	working = append(working, history...)
	working = append(working, userTurn)

	var decls []domain.ToolDeclaration
	if o.deps.Tools != nil {
		decls = o.deps.Tools.Declarations()
	}

	for round := 0; ; round++ {
		resp, err := o.generate(ctx, working, len(working)-len(history), decls, round)
		if err != nil {
			return nil, err
		}

		if len(resp.FunctionCalls) == 0 {
			if resp.Text == "" {
				return nil, fmt.Errorf("%w: %w: empty answer", domain.ErrModelUnavailable, domain.ErrMalformedResponse)
			}
			o.deps.Logger.Debug("orchestrator final answer", "rounds", round)
			return &Exchange{
				Reply: resp.Text,
				Turns: []domain.Turn{userTurn, domain.NewModelTextTurn(resp.Text)},
			}, nil
		}

		if round >= o.deps.MaxIterations {
			o.deps.Logger.Warn("tool loop exceeded", "rounds", round, "max", o.deps.MaxIterations)
			return nil, fmt.Errorf("%w: %d tool rounds", domain.ErrToolLoopExceeded, o.deps.MaxIterations)
		}

		modelTurn := resp.Turn
		if len(modelTurn.Parts) == 0 {
			modelTurn = callTurn(resp.FunctionCalls)
		}
		working = append(working, modelTurn, o.dispatch(ctx, resp.FunctionCalls, round))
	}
}

// generate performs one budgeted, time-limited model call. The last pinned
// turns of working (the exchange in progress) are never evicted.
func (o *Orchestrator) generate(ctx context.Context, working []domain.Turn, pinned int, decls []domain.ToolDeclaration, round int) (*domain.ModelResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.round",
		trace.WithAttributes(tracer.IntAttr("round", round)),
	)
	defer span.End()

	contents, err := o.deps.Budgeter.FitPinned(working, pinned)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.deps.ModelTimeout)
	defer cancel()

	resp, err := o.deps.Model.Generate(callCtx, domain.GenerateRequest{
		Contents:          contents,
		SystemInstruction: o.deps.SystemInstruction,
		Tools:             decls,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
		tracer.RecordError(span, err)
		o.deps.Logger.Error("model call failed", "round", round, "error", err)
		return nil, err
	}
	if resp == nil {
		err = fmt.Errorf("%w: %w: nil response", domain.ErrModelUnavailable, domain.ErrMalformedResponse)
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("function_calls", len(resp.FunctionCalls)))
	tracer.SetOK(span)
	return resp, nil
}

// dispatch runs every call of a round concurrently and returns one user
// turn carrying the results in request order.
func (o *Orchestrator) dispatch(ctx context.Context, calls []domain.FunctionCall, round int) domain.Turn {
	results := make([]domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, fc := range calls {
		wg.Add(1)
		go func(idx int, fc domain.FunctionCall) {
			defer wg.Done()
			results[idx] = o.invoke(ctx, fc)
		}(i, fc)
	}
	wg.Wait()

	turn := domain.Turn{Role: domain.RoleUser, Parts: make([]domain.Part, len(results))}
	failed := 0
	for i, r := range results {
		if !r.OK() {
			failed++
		}
		turn.Parts[i] = domain.Part{FunctionResult: &domain.FunctionResult{
			ID:       r.CallID,
			Name:     r.Name,
			Response: r.Response(),
		}}
	}
	o.deps.Logger.Debug("tool round completed", "round", round, "calls", len(calls), "failed", failed)
	return turn
}

func (o *Orchestrator) invoke(ctx context.Context, fc domain.FunctionCall) domain.ToolResult {
	if o.deps.Tools == nil {
		return domain.ToolResult{
			CallID: fc.ID,
			Name:   fc.Name,
			Err:    domain.NewToolError(domain.ToolErrUnknownTool, fmt.Sprintf("Unknown tool '%s'.", fc.Name)),
		}
	}
	args := json.RawMessage("{}")
	if len(fc.Args) > 0 {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return domain.ToolResult{
				CallID: fc.ID,
				Name:   fc.Name,
				Err:    domain.NewToolError(domain.ToolErrInvalidArguments, "arguments are not valid JSON"),
			}
		}
		args = b
	}
	res := o.deps.Tools.Invoke(ctx, domain.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
	// The registry may not know the call ID; results must still pair up.
	res.CallID, res.Name = fc.ID, fc.Name
	return res
}

func callTurn(calls []domain.FunctionCall) domain.Turn {
	turn := domain.Turn{Role: domain.RoleModel, Parts: make([]domain.Part, len(calls))}
	for i := range calls {
		fc := calls[i]
		turn.Parts[i] = domain.Part{FunctionCall: &fc}
	}
	return turn
}
