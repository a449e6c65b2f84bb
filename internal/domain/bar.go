package domain

import "time"

// PriceBar represents a single OHLCV bar of a perpetual futures contract.
type PriceBar struct {
	Time        time.Time // Bar timestamp; ordering is the simulation clock
	Open        float64   // Opening price
	High        float64   // Highest price
	Low         float64   // Lowest price
	Close       float64   // Closing price
	Volume      float64   // Trading volume
	FundingRate *float64  // Funding rate settled during this bar, nil if none
}

// HasFunding reports whether a funding settlement happened during the bar.
func (b PriceBar) HasFunding() bool {
	return b.FundingRate != nil
}

// Funding returns the bar's funding rate, or 0 when none was settled.
func (b PriceBar) Funding() float64 {
	if b.FundingRate == nil {
		return 0
	}
	return *b.FundingRate
}

// AdverseExtreme returns the worst price reached during the bar for the given side:
// the low for longs and the high for shorts. Bars without a high/low fall back to the close.
func (b PriceBar) AdverseExtreme(side Side) float64 {
	if side == SideShort {
		if b.High > 0 {
			return b.High
		}
		return b.Close
	}
	if b.Low > 0 {
		return b.Low
	}
	return b.Close
}

// Rate is a small helper for building bars with a funding rate.
func Rate(r float64) *float64 {
	return &r
}
