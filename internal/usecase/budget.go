package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"planit/internal/domain"
)

// DefaultContextCeiling is the serialized context size allowed per model call.
const DefaultContextCeiling = 20 * 1024 * 1024

// ContextBudgeter keeps the working context under a byte ceiling by
// evicting the oldest turns in pairs.
type ContextBudgeter struct {
	ceiling int
	logger  *slog.Logger
}

// NewContextBudgeter creates a budgeter. A non-positive ceiling selects
// DefaultContextCeiling.
func NewContextBudgeter(ceiling int, logger *slog.Logger) *ContextBudgeter {
	if ceiling <= 0 {
		ceiling = DefaultContextCeiling
	}
	return &ContextBudgeter{ceiling: ceiling, logger: logger}
}

// Ceiling returns the configured byte ceiling.
func (b *ContextBudgeter) Ceiling() int { return b.ceiling }

// Fit returns a copy of turns whose JSON encoding fits the ceiling.
func (b *ContextBudgeter) Fit(turns []domain.Turn) ([]domain.Turn, error) {
	return b.FitPinned(turns, 0)
}

// FitPinned is Fit with the last pinned turns exempt from eviction. The
// orchestrator pins the exchange in progress so a question and its tool
// calls and results are never split.
func (b *ContextBudgeter) FitPinned(turns []domain.Turn, pinned int) ([]domain.Turn, error) {
	fitted, err := FitContextPinned(turns, b.ceiling, pinned)
	if err != nil {
		b.logger.Warn("context budget exceeded", "turns", len(turns), "pinned", pinned, "ceiling", b.ceiling)
		return nil, err
	}
	if dropped := len(turns) - len(fitted); dropped > 0 {
		b.logger.Debug("context budget evicted turns", "dropped", dropped, "kept", len(fitted))
	}
	return fitted, nil
}

// FitContext drops the two oldest turns until the JSON encoding of the list
// is at most ceiling bytes. It fails with ErrContextTooLarge once fewer than
// two turns remain and the list still does not fit. The input is not modified.
func FitContext(turns []domain.Turn, ceiling int) ([]domain.Turn, error) {
	return FitContextPinned(turns, ceiling, 0)
}

// FitContextPinned is FitContext where only turns before the last pinned
// ones may be evicted. It fails with ErrContextTooLarge once fewer than two
// evictable turns remain and the list still does not fit.
func FitContextPinned(turns []domain.Turn, ceiling, pinned int) ([]domain.Turn, error) {
	pinned = max(0, min(pinned, len(turns)))
	evictable := len(turns) - pinned

	sizes := make([]int, len(turns))
	total := 2 // "[" and "]"
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode turn %d: %w", i, err)
		}
		sizes[i] = len(b)
		total += len(b)
	}
	if len(turns) > 1 {
		total += len(turns) - 1 // separating commas
	}

	start := 0
	for total > ceiling {
		if evictable-start < 2 {
			return nil, fmt.Errorf("%w: %d bytes over a %d byte ceiling", domain.ErrContextTooLarge, total, ceiling)
		}
		remaining := len(turns) - start
		total -= sizes[start] + sizes[start+1]
		// Two turns leave together with their two commas. When they were
		// the whole list no commas remain to remove.
		if remaining > 2 {
			total -= 2
		} else {
			total -= 1
		}
		start += 2
	}

	out := make([]domain.Turn, len(turns)-start)
	copy(out, turns[start:])
	return out, nil
}
