package sizing

// Input is what the backtest engine knows when it asks for a size.
type Input struct {
	Equity     float64
	Confidence float64 // [0, 1], from the entry decision
	Leverage   float64 // leverage the position will be opened at
	Price      float64 // reference fill price
	Volatility float64 // per-period realised volatility, 0 when unknown
}

// Func returns the desired notional for an entry. The engine clamps the
// result to equity × leverage.
type Func func(Input) (float64, error)

// EquityMultiple deploys equity × leverage × confidence.
func EquityMultiple() Func {
	return func(in Input) (float64, error) {
		if err := checkEquity(in.Equity); err != nil {
			return 0, err
		}
		return result(in.Equity * in.Leverage * in.Confidence)
	}
}

// FixedFractionOf deploys a fixed fraction of the leveraged buying power,
// scaled by confidence.
func FixedFractionOf(fraction float64) Func {
	return func(in Input) (float64, error) {
		size, err := FixedFraction(in.Equity, fraction)
		if err != nil {
			return 0, err
		}
		return result(size * in.Leverage * in.Confidence)
	}
}

// Kelly deploys the capped Kelly fraction of leveraged buying power.
func Kelly(winRate, avgWin, avgLoss, cap float64) Func {
	return func(in Input) (float64, error) {
		size, err := KellyCriterion(winRate, avgWin, avgLoss, in.Equity, cap)
		if err != nil {
			return 0, err
		}
		return result(size * in.Leverage * in.Confidence)
	}
}

// VolatilityTarget sizes by VolatilityAdjusted using the engine's realised
// volatility. Without a volatility estimate it falls back to equity × leverage.
func VolatilityTarget(targetRiskPct float64) Func {
	return func(in Input) (float64, error) {
		if in.Volatility <= 0 {
			return EquityMultiple()(in)
		}
		size, err := VolatilityAdjusted(in.Equity, targetRiskPct, in.Volatility)
		if err != nil {
			return 0, err
		}
		return result(size * in.Confidence)
	}
}
