package strategies

import (
	"context"
	"fmt"
	"math"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/indicators"
)

const MACrossoverName = "ma_crossover"

// MACrossoverConfig holds configuration for the moving-average crossover strategy.
type MACrossoverConfig struct {
	FastPeriod   int     // Fast EMA period (e.g., 9)
	SlowPeriod   int     // Slow EMA period (e.g., 21)
	MinSpreadPct float64 // Minimum fast/slow separation after a cross, as a fraction of the slow EMA
	AllowShort   bool    // Flip short on a downward cross instead of just exiting
	Leverage     float64 // Requested leverage; 0 uses the run default
}

// MACrossover goes long when the fast EMA crosses above the slow EMA and
// exits or flips short on the opposite cross.
type MACrossover struct {
	*BaseStrategy
	config MACrossoverConfig
}

// NewMACrossover validates the configuration and creates the strategy.
func NewMACrossover(config MACrossoverConfig, log ports.Logger) (*MACrossover, error) {
	if config.FastPeriod <= 0 || config.SlowPeriod <= 0 {
		return nil, fmt.Errorf("%w: moving average periods must be positive", ports.ErrInvalidInput)
	}
	if config.FastPeriod >= config.SlowPeriod {
		return nil, fmt.Errorf("%w: fast period must be less than slow period", ports.ErrInvalidInput)
	}
	if config.MinSpreadPct < 0 {
		return nil, fmt.Errorf("%w: minimum spread must not be negative", ports.ErrInvalidInput)
	}
	return &MACrossover{BaseStrategy: NewBaseStrategy(log), config: config}, nil
}

func newMACrossoverFromParams(params map[string]float64, log ports.Logger) (ports.Strategy, error) {
	return NewMACrossover(MACrossoverConfig{
		FastPeriod:   int(param(params, "fast_period", 9)),
		SlowPeriod:   int(param(params, "slow_period", 21)),
		MinSpreadPct: param(params, "min_spread_pct", 0),
		AllowShort:   param(params, "allow_short", 1) != 0,
		Leverage:     param(params, "leverage", 0),
	}, log)
}

func (m *MACrossover) Name() string {
	return MACrossoverName
}

// RequiredDataPoints needs one extra bar to compare against the previous averages.
func (m *MACrossover) RequiredDataPoints() int {
	return m.config.SlowPeriod + 1
}

// Signal reacts only on the bar where the averages cross.
func (m *MACrossover) Signal(ctx context.Context, history []domain.PriceBar) (domain.Decision, error) {
	if len(history) < m.RequiredDataPoints() {
		return domain.Hold(), nil
	}

	closes := indicators.Closes(history)
	fast, err := indicators.EMASeries(closes, m.config.FastPeriod)
	if err != nil {
		return domain.Hold(), err
	}
	slow, err := indicators.EMASeries(closes, m.config.SlowPeriod)
	if err != nil {
		return domain.Hold(), err
	}

	fastNow, fastPrev := fast[len(fast)-1], fast[len(fast)-2]
	slowNow, slowPrev := slow[len(slow)-1], slow[len(slow)-2]

	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow
	if !crossedUp && !crossedDown {
		return domain.Hold(), nil
	}
	if spread := math.Abs(fastNow-slowNow) / slowNow; spread < m.config.MinSpreadPct {
		m.logger.Debug(ctx, "Crossover ignored, spread too small", map[string]interface{}{
			"spread": spread,
			"min":    m.config.MinSpreadPct,
		})
		return domain.Hold(), nil
	}

	var d domain.Decision
	switch {
	case crossedUp:
		d = domain.EnterLong(1)
	case m.config.AllowShort:
		d = domain.EnterShort(1)
	default:
		return domain.Exit(), nil
	}

	m.logger.Debug(ctx, "Crossover signal", map[string]interface{}{
		"action": d.Action.String(),
		"fast":   fastNow,
		"slow":   slowNow,
		"time":   history[len(history)-1].Time,
	})
	if m.config.Leverage > 0 {
		d = d.WithLeverage(m.config.Leverage)
	}
	return d, nil
}
