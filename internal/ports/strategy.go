package ports

import (
	"context"

	"perpBacktester/internal/domain"
)

// Strategy defines the interface for trading strategies driven by the backtest engine.
type Strategy interface {
	// Name returns a short identifier for the strategy.
	Name() string

	// RequiredDataPoints returns the minimum number of bars needed before the strategy trades.
	RequiredDataPoints() int

	// Signal returns the decision for the last bar of history.
	// history never contains bars after the current one.
	Signal(ctx context.Context, history []domain.PriceBar) (domain.Decision, error)
}
