package backtesting

import (
	"math"

	"perpBacktester/internal/domain"
)

// account is the simulated margin account of one run. It is never shared.
type account struct {
	cash     float64
	peak     float64
	position *domain.Position

	trades  []domain.Trade
	equity  []domain.EquityPoint
	fees    float64
	funding float64
}

func newAccount(capital float64) *account {
	return &account{cash: capital, peak: capital}
}

// equityAt marks the open position to price.
func (a *account) equityAt(price float64) float64 {
	if a.position == nil {
		return a.cash
	}
	return a.cash + a.position.UnrealizedPnL(price)
}

// accrueFunding charges one funding settlement. Longs pay a positive rate, shorts receive it.
func (a *account) accrueFunding(rate float64) float64 {
	p := a.position
	amount := p.Side.Direction() * p.SizeUSD * rate
	a.cash -= amount
	a.funding += amount
	p.FundingPaid += amount
	return amount
}

func (a *account) open(p *domain.Position) {
	a.cash -= p.EntryFee
	a.fees += p.EntryFee
	a.position = p
}

// close settles the open position at exitPrice and appends its Trade.
func (a *account) close(exitPrice, exitFee float64, bar domain.PriceBar, reason domain.ExitReason) domain.Trade {
	p := a.position
	gross := p.UnrealizedPnL(exitPrice)
	a.cash += gross - exitFee
	a.fees += exitFee

	fees := p.EntryFee + exitFee
	realized := gross - fees - p.FundingPaid
	trade := domain.Trade{
		EntryTime:      p.EntryTime,
		ExitTime:       bar.Time,
		Side:           p.Side,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		SizeUSD:        p.SizeUSD,
		Leverage:       p.Leverage,
		GrossPnL:       gross,
		RealizedPnL:    realized,
		RealizedPnLPct: realized / p.Margin() * 100,
		FeesPaid:       fees,
		FundingPaid:    p.FundingPaid,
		ExitReason:     reason,
	}
	a.trades = append(a.trades, trade)
	a.position = nil
	return trade
}

// mark appends the bar's equity sample.
func (a *account) mark(bar domain.PriceBar) domain.EquityPoint {
	eq := a.equityAt(bar.Close)
	a.peak = math.Max(a.peak, eq)
	dd := 0.0
	if a.peak > 0 {
		dd = (a.peak - eq) / a.peak
	}
	pt := domain.EquityPoint{Time: bar.Time, Equity: eq, Cash: a.cash, Drawdown: dd}
	a.equity = append(a.equity, pt)
	return pt
}
