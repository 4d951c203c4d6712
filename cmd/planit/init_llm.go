package main

import (
	"context"
	"fmt"
	"log/slog"

	"planit/internal/adapter/llm"
	"planit/internal/domain"
	"planit/internal/infra/config"
)

// initModel builds the model client, wrapped in a circuit breaker when
// enabled.
func initModel(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.ModelClient, error) {
	if cfg.LLM.Provider != "gemini" {
		return nil, fmt.Errorf("unsupported provider %q", cfg.LLM.Provider)
	}

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		ConnTimeout: cfg.LLM.ConnTimeout,
		RespTimeout: cfg.LLM.RespTimeout,
		Pool:        llm.PooledTransportConfig(cfg.LLM.Pool),
	}, log)
	if err != nil {
		return nil, err
	}

	var model domain.ModelClient = gemini
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		model = llm.NewCircuitBreakerClient(model, llm.CircuitBreakerConfig{
			MaxFailures: cb.MaxFailures,
			Timeout:     cb.Timeout,
			Interval:    cb.Interval,
		}, log)
		log.Info("llm circuit breaker enabled",
			"max_failures", cb.MaxFailures,
			"timeout", cb.Timeout,
			"interval", cb.Interval,
		)
	}
	return model, nil
}
