package domain

import "time"

// Position represents the single open leveraged position of a simulation.
type Position struct {
	Side             Side      // Long or short
	EntryPrice       float64   // Fill price including slippage
	SizeUSD          float64   // Notional value at entry
	Leverage         float64   // Notional / margin, always >= 1
	EntryTime        time.Time // Timestamp of the entry bar
	EntryFee         float64   // Fee charged when the position was opened
	FundingPaid      float64   // Funding accumulated while open (negative when received)
	LiquidationPrice float64   // Price at which the position is force-closed
}

// Margin returns the collateral posted for the position.
func (p *Position) Margin() float64 {
	return p.SizeUSD / p.Leverage
}

// UnrealizedPnL returns the mark-to-market profit at the given price, before fees and funding.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.SizeUSD * p.Side.Direction() * (price - p.EntryPrice) / p.EntryPrice
}

// IsLiquidatedAt reports whether the given price is at or beyond the liquidation price.
func (p *Position) IsLiquidatedAt(price float64) bool {
	if p.Side == SideShort {
		return price >= p.LiquidationPrice
	}
	return price <= p.LiquidationPrice
}
