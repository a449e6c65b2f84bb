package domain

import "time"

// EquityPoint represents a point on the equity curve, sampled once per bar.
type EquityPoint struct {
	Time     time.Time
	Equity   float64 // Cash plus unrealized P&L
	Cash     float64
	Drawdown float64 // Fractional decline from the running peak equity
}
