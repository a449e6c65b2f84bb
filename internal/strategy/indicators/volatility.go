package indicators

import (
	"math"

	"perpBacktester/internal/domain"
)

// RealizedVolatility is the sample standard deviation of the last lookback
// log returns of the close, i.e. a per-bar volatility.
func RealizedVolatility(bars []domain.PriceBar, lookback int) (float64, error) {
	if lookback < 2 {
		lookback = 2
	}
	if len(bars) < lookback+1 {
		return 0, notEnough("realized volatility", len(bars), lookback+1)
	}

	window := bars[len(bars)-lookback-1:]
	returns := make([]float64, 0, lookback)
	mean := 0.0
	for i := 1; i < len(window); i++ {
		r := math.Log(window[i].Close / window[i-1].Close)
		returns = append(returns, r)
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance), nil
}
