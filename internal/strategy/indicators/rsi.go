package indicators

import (
	"context"

	"perpBacktester/internal/domain"
)

// RSIConfig configures the Relative Strength Index and its bands.
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index with Wilder smoothing.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates an RSI indicator.
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (r *RSI) Name() string { return "RSI" }

// RequiredDataPoints needs period price changes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate returns the latest RSI in [0, 100]. A flat series reads 50.
func (r *RSI) Calculate(_ context.Context, bars []domain.PriceBar) (float64, error) {
	period := r.Config.Period
	if period <= 0 || len(bars) <= period {
		return 0, notEnough("RSI", len(bars), period+1)
	}

	var gain, loss float64
	for i := 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		up, down := 0.0, 0.0
		if change > 0 {
			up = change
		} else {
			down = -change
		}

		if i <= period {
			gain += up / float64(period)
			loss += down / float64(period)
			continue
		}
		gain = (gain*float64(period-1) + up) / float64(period)
		loss = (loss*float64(period-1) + down) / float64(period)
	}

	switch {
	case loss == 0 && gain == 0:
		return 50, nil
	case loss == 0:
		return 100, nil
	}
	return 100 - 100/(1+gain/loss), nil
}

func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
