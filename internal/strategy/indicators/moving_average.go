package indicators

import (
	"context"
	"fmt"

	"perpBacktester/internal/domain"
)

// MovingAverageType selects SMA or EMA.
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig configures a MovingAverage.
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA over bar closes.
type MovingAverage struct {
	BaseIndicator
	maType MovingAverageType
}

// NewMovingAverage creates a moving average indicator.
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		maType:        config.Type,
	}
}

func (m *MovingAverage) Name() string {
	return string(m.maType)
}

// Calculate returns the latest average value.
func (m *MovingAverage) Calculate(_ context.Context, bars []domain.PriceBar) (float64, error) {
	switch m.maType {
	case SimpleMovingAverage:
		return SMA(Closes(bars), m.Config.Period)
	case ExponentialMovingAverage:
		series, err := EMASeries(Closes(bars), m.Config.Period)
		if err != nil {
			return 0, err
		}
		return series[len(series)-1], nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.maType)
	}
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("invalid SMA period %d", period)
	}
	if len(values) < period {
		return 0, notEnough("SMA", len(values), period)
	}
	total := 0.0
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period), nil
}

// EMASeries returns the EMA for every index from period-1 onwards, seeded with
// the SMA of the first period values. The result has len(values)-period+1 entries.
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(values) < period {
		return nil, notEnough("EMA", len(values), period)
	}

	seed, _ := SMA(values[:period], period)
	k := 2.0 / float64(period+1)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)
	ema := seed
	for _, v := range values[period:] {
		ema += (v - ema) * k
		out = append(out, ema)
	}
	return out, nil
}
