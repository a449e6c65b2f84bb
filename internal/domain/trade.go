package domain

import "time"

// Trade represents a closed position. It is immutable once appended to a trade log.
type Trade struct {
	EntryTime      time.Time  // Timestamp when the position was entered
	ExitTime       time.Time  // Timestamp when the position was exited
	Side           Side       // Long or short
	EntryPrice     float64    // Entry fill price
	ExitPrice      float64    // Exit fill price (the liquidation price for liquidations)
	SizeUSD        float64    // Notional value at entry
	Leverage       float64    // Leverage used for the position
	GrossPnL       float64    // Price P&L before fees and funding
	RealizedPnL    float64    // GrossPnL - FeesPaid - FundingPaid
	RealizedPnLPct float64    // RealizedPnL relative to posted margin, in percent
	FeesPaid       float64    // Entry plus exit fees
	FundingPaid    float64    // Net funding paid while open (negative when received)
	ExitReason     ExitReason // Why the position was closed
}

// Duration returns how long the position was held.
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// IsWin reports whether the trade closed with a positive realized P&L.
func (t Trade) IsWin() bool {
	return t.RealizedPnL > 0
}
