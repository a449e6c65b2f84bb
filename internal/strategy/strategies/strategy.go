// Package strategies holds sample signal functions for the backtest engine.
package strategies

import (
	"context"
	"fmt"
	"sort"

	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/backtesting"
)

// BaseStrategy provides common functionality for strategies.
type BaseStrategy struct {
	logger ports.Logger
}

// NewBaseStrategy creates a base strategy. A nil logger discards output.
func NewBaseStrategy(log ports.Logger) *BaseStrategy {
	if log == nil {
		log = logger.Nop{}
	}
	return &BaseStrategy{logger: log}
}

// AsSignalFunc adapts a strategy to the engine. The strategy holds until
// RequiredDataPoints bars are available.
func AsSignalFunc(s ports.Strategy) backtesting.SignalFunc {
	required := s.RequiredDataPoints()
	return func(ctx context.Context, history []domain.PriceBar) (domain.Decision, error) {
		if len(history) < required {
			return domain.Hold(), nil
		}
		return s.Signal(ctx, history)
	}
}

// Factory builds a strategy from flat numeric parameters, as used by sweeps and run files.
type Factory func(params map[string]float64, log ports.Logger) (ports.Strategy, error)

var registry = map[string]Factory{
	MACrossoverName:  newMACrossoverFromParams,
	RSIReversionName: newRSIReversionFromParams,
}

// New builds a registered strategy by name.
func New(name string, params map[string]float64, log ports.Logger) (ports.Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (available: %v)", ports.ErrInvalidInput, name, Names())
	}
	return factory(params, log)
}

// Names lists the registered strategies.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// param reads params[key], falling back to def.
func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
