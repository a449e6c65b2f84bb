// Package indicators computes technical indicators over price bars.
package indicators

import (
	"context"
	"fmt"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
)

// Indicator computes a single value from the most recent bars of a series.
type Indicator interface {
	Calculate(ctx context.Context, bars []domain.PriceBar) (float64, error)
	// RequiredDataPoints is the minimum series length Calculate accepts.
	RequiredDataPoints() int
	Name() string
}

// IndicatorConfig holds the lookback shared by all indicators.
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides RequiredDataPoints for period-based indicators.
type BaseIndicator struct {
	Config IndicatorConfig
}

func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func notEnough(name string, have, need int) error {
	return fmt.Errorf("%w: %s needs %d bars, got %d", ports.ErrInsufficientData, name, need, have)
}

// Closes extracts close prices.
func Closes(bars []domain.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
