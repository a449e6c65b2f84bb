package indicators

import (
	"context"
	"math"

	"perpBacktester/internal/domain"
)

// ATR is the Average True Range with Wilder smoothing.
type ATR struct {
	BaseIndicator
}

// NewATR creates an ATR over the given period.
func NewATR(config IndicatorConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config}}
}

func (a *ATR) Name() string { return "ATR" }

// RequiredDataPoints needs one extra bar for the first previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate returns the latest ATR value.
func (a *ATR) Calculate(_ context.Context, bars []domain.PriceBar) (float64, error) {
	period := a.Config.Period
	if period <= 0 || len(bars) < period+1 {
		return 0, notEnough("ATR", len(bars), period+1)
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars[i], bars[i-1].Close)
	}
	atr /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1].Close)) / float64(period)
	}
	return atr, nil
}

func trueRange(b domain.PriceBar, prevClose float64) float64 {
	high, low := b.High, b.Low
	if high == 0 && low == 0 {
		high, low = b.Close, b.Close
	}
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
