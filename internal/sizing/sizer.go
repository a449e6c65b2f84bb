// Package sizing turns account state and trade statistics into a notional
// position size in USD. All functions are pure.
package sizing

import (
	"fmt"
	"math"

	"perpBacktester/internal/ports"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ports.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func checkEquity(equity float64) error {
	if !finite(equity) || equity <= 0 {
		return invalid("equity %f must be positive", equity)
	}
	return nil
}

func result(size float64) (float64, error) {
	if !finite(size) || size < 0 {
		return 0, invalid("computed size %f is not a valid notional", size)
	}
	return size, nil
}

// FixedFraction sizes a position as a constant fraction of equity.
func FixedFraction(equity, fraction float64) (float64, error) {
	if err := checkEquity(equity); err != nil {
		return 0, err
	}
	if !finite(fraction) || fraction < 0 || fraction > 1 {
		return 0, invalid("fraction %f must be in [0, 1]", fraction)
	}
	return result(equity * fraction)
}

// KellyFraction returns f = p - (1-p)/(W/L) clamped to [0, cap].
// A strategy with no edge (p = 0.5, W = L) yields 0.
func KellyFraction(winRate, avgWin, avgLoss, cap float64) (float64, error) {
	if !finite(winRate, avgWin, avgLoss, cap) {
		return 0, invalid("non-finite kelly input")
	}
	if winRate < 0 || winRate > 1 {
		return 0, invalid("win rate %f must be in [0, 1]", winRate)
	}
	if avgWin <= 0 || avgLoss <= 0 {
		return 0, invalid("average win %f and loss %f must be positive", avgWin, avgLoss)
	}
	if cap < 0 || cap > 1 {
		return 0, invalid("kelly cap %f must be in [0, 1]", cap)
	}

	f := winRate - (1-winRate)/(avgWin/avgLoss)
	return Clamp01(f, cap), nil
}

// KellyCriterion sizes a position at the capped Kelly fraction of equity.
func KellyCriterion(winRate, avgWin, avgLoss, equity, cap float64) (float64, error) {
	if err := checkEquity(equity); err != nil {
		return 0, err
	}
	f, err := KellyFraction(winRate, avgWin, avgLoss, cap)
	if err != nil {
		return 0, err
	}
	return result(equity * f)
}

// VolatilityAdjusted sizes so that a one-sigma move costs targetRiskPct of equity.
func VolatilityAdjusted(equity, targetRiskPct, volatility float64) (float64, error) {
	if err := checkEquity(equity); err != nil {
		return 0, err
	}
	if !finite(targetRiskPct, volatility) || targetRiskPct < 0 {
		return 0, invalid("target risk %f must be non-negative", targetRiskPct)
	}
	if volatility <= 0 {
		return 0, invalid("volatility %f must be positive", volatility)
	}
	return result(equity * targetRiskPct / volatility)
}

// RiskBased sizes so that a stop-out at stopPrice loses riskPct of equity.
func RiskBased(equity, riskPct, entryPrice, stopPrice float64) (float64, error) {
	if err := checkEquity(equity); err != nil {
		return 0, err
	}
	if !finite(riskPct, entryPrice, stopPrice) || riskPct < 0 || riskPct > 1 {
		return 0, invalid("risk fraction %f must be in [0, 1]", riskPct)
	}
	if entryPrice <= 0 || stopPrice <= 0 {
		return 0, invalid("entry %f and stop %f must be positive", entryPrice, stopPrice)
	}
	dist := math.Abs(entryPrice - stopPrice)
	if dist == 0 {
		return 0, invalid("stop price equals entry price")
	}
	return result(equity * riskPct * entryPrice / dist)
}

// LeverageAdjusted shrinks a base size as leverage grows: base / leverage^dampening.
func LeverageAdjusted(baseSize, leverage, dampening float64) (float64, error) {
	if !finite(baseSize, leverage, dampening) || baseSize < 0 {
		return 0, invalid("base size %f must be non-negative", baseSize)
	}
	if leverage < 1 {
		return 0, invalid("leverage %f must be at least 1", leverage)
	}
	if dampening < 0 || dampening > 1 {
		return 0, invalid("dampening %f must be in [0, 1]", dampening)
	}
	return result(baseSize / math.Pow(leverage, dampening))
}

// MaxNotional is the largest position equity can carry under leverageCap.
func MaxNotional(equity, leverageCap float64) float64 {
	if equity <= 0 || leverageCap <= 0 {
		return 0
	}
	return equity * leverageCap
}

// Clamp limits size to [0, MaxNotional(equity, leverageCap)].
func Clamp(size, equity, leverageCap float64) float64 {
	if size <= 0 || math.IsNaN(size) {
		return 0
	}
	return math.Min(size, MaxNotional(equity, leverageCap))
}

// LeverageForPosition is the effective leverage of a position of the given size.
func LeverageForPosition(equity, sizeUSD float64) (float64, error) {
	if err := checkEquity(equity); err != nil {
		return 0, err
	}
	if !finite(sizeUSD) || sizeUSD < 0 {
		return 0, invalid("size %f must be non-negative", sizeUSD)
	}
	return sizeUSD / equity, nil
}

// Clamp01 clamps f to [0, cap].
func Clamp01(f, cap float64) float64 {
	return math.Max(0, math.Min(f, cap))
}
