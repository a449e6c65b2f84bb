package strategies

import (
	"context"
	"fmt"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/indicators"
)

const RSIReversionName = "rsi_reversion"

// RSIReversionConfig holds configuration for the RSI mean-reversion strategy.
type RSIReversionConfig struct {
	Period     int     // RSI period (e.g., 14)
	Oversold   float64 // Enter long at or below (e.g., 30)
	Overbought float64 // Enter short or exit at or above (e.g., 70)
	ExitLevel  float64 // Close when RSI crosses this level (e.g., 50)
	AllowShort bool
	Leverage   float64 // Requested leverage; 0 uses the run default
}

// RSIReversion buys oversold and sells overbought conditions, flattening
// when the RSI crosses back over the exit level.
type RSIReversion struct {
	*BaseStrategy
	config RSIReversionConfig
	rsi    *indicators.RSI
}

// NewRSIReversion validates the configuration and creates the strategy.
func NewRSIReversion(config RSIReversionConfig, log ports.Logger) (*RSIReversion, error) {
	if config.Period <= 1 {
		return nil, fmt.Errorf("%w: RSI period must be greater than 1", ports.ErrInvalidInput)
	}
	if config.Oversold < 0 || config.Overbought > 100 || config.Oversold >= config.Overbought {
		return nil, fmt.Errorf("%w: need 0 <= oversold < overbought <= 100", ports.ErrInvalidInput)
	}
	if config.ExitLevel <= config.Oversold || config.ExitLevel >= config.Overbought {
		return nil, fmt.Errorf("%w: exit level must lie between oversold and overbought", ports.ErrInvalidInput)
	}
	return &RSIReversion{
		BaseStrategy: NewBaseStrategy(log),
		config:       config,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.Period},
			Overbought:      config.Overbought,
			Oversold:        config.Oversold,
		}),
	}, nil
}

func newRSIReversionFromParams(params map[string]float64, log ports.Logger) (ports.Strategy, error) {
	return NewRSIReversion(RSIReversionConfig{
		Period:     int(param(params, "period", 14)),
		Oversold:   param(params, "oversold", 30),
		Overbought: param(params, "overbought", 70),
		ExitLevel:  param(params, "exit_level", 50),
		AllowShort: param(params, "allow_short", 1) != 0,
		Leverage:   param(params, "leverage", 0),
	}, log)
}

func (r *RSIReversion) Name() string {
	return RSIReversionName
}

// RequiredDataPoints needs a previous RSI value to detect exit crossings.
func (r *RSIReversion) RequiredDataPoints() int {
	return r.rsi.RequiredDataPoints() + 1
}

func (r *RSIReversion) Signal(ctx context.Context, history []domain.PriceBar) (domain.Decision, error) {
	if len(history) < r.RequiredDataPoints() {
		return domain.Hold(), nil
	}
	now, err := r.rsi.Calculate(ctx, history)
	if err != nil {
		return domain.Hold(), err
	}
	prev, err := r.rsi.Calculate(ctx, history[:len(history)-1])
	if err != nil {
		return domain.Hold(), err
	}

	var d domain.Decision
	switch {
	case r.rsi.IsOversold(now):
		d = domain.EnterLong(1)
	case r.rsi.IsOverbought(now) && r.config.AllowShort:
		d = domain.EnterShort(1)
	case r.rsi.IsOverbought(now):
		return domain.Exit(), nil
	case (prev < r.config.ExitLevel) != (now < r.config.ExitLevel):
		r.logger.Debug(ctx, "RSI crossed exit level", map[string]interface{}{"rsi": now, "prev": prev})
		return domain.Exit(), nil
	default:
		return domain.Hold(), nil
	}

	if r.config.Leverage > 0 {
		d = d.WithLeverage(r.config.Leverage)
	}
	return d, nil
}
