// Package backtesting simulates a leveraged perpetual-futures account over a
// historical bar series driven by a caller-supplied signal function.
package backtesting

import (
	"context"
	"fmt"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/risk"
	"perpBacktester/internal/sizing"
	"perpBacktester/internal/strategy/indicators"
)

// SignalFunc decides what to do on the last bar of history. history is a
// read-only prefix of the run's bars ending at the current bar.
type SignalFunc func(ctx context.Context, history []domain.PriceBar) (domain.Decision, error)

// Result is the trade log and equity curve of one run.
type Result struct {
	Trades         []domain.Trade
	Equity         []domain.EquityPoint
	InitialCapital float64
	FinalEquity    float64
	TotalFees      float64
	TotalFunding   float64
	Bars           int  // Bars processed
	Stopped        bool // The signal function ended the run early
}

// Liquidations counts trades closed by liquidation.
func (r *Result) Liquidations() int {
	n := 0
	for _, t := range r.Trades {
		if t.ExitReason == domain.ExitReasonLiquidation {
			n++
		}
	}
	return n
}

type engine struct {
	cfg     Config
	feeRate float64
	bars    []domain.PriceBar
	signal  SignalFunc
	acct    *account
	log     ports.Logger
}

// Run simulates cfg over bars. Invalid configuration returns ErrInvalidInput and
// a malformed series returns ErrDataError, both before any bar is processed.
// A signal function error aborts the run and is returned together with the
// partial result up to the failing bar.
func Run(ctx context.Context, bars []domain.PriceBar, signal SignalFunc, cfg Config) (*Result, error) {
	if signal == nil {
		return nil, fmt.Errorf("%w: signal function is required", ports.ErrInvalidInput)
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		feeRate: cfg.feeRate(),
		bars:    bars,
		signal:  signal,
		acct:    newAccount(cfg.InitialCapital),
		log:     cfg.Logger,
	}

	e.log.Info(ctx, "Backtest started", ports.Fields{
		"bars":            len(bars),
		"from":            bars[0].Time,
		"to":              bars[len(bars)-1].Time,
		"initial_capital": cfg.InitialCapital,
		"leverage":        cfg.Leverage,
		"execution":       string(cfg.Execution),
	})

	stopped := false
	processed := 0
	for i := range bars {
		processed++
		stop, err := e.step(ctx, i)
		if err != nil {
			e.acct.mark(bars[i])
			res := e.result(processed, false)
			e.log.Error(ctx, err, "Backtest aborted by signal function", ports.Fields{"bar": i})
			return res, fmt.Errorf("signal function failed at bar %d (%s): %w", i, bars[i].Time.Format("2006-01-02T15:04:05Z07:00"), err)
		}
		if stop {
			stopped = true
			break
		}
	}

	res := e.result(processed, stopped)
	e.log.Info(ctx, "Backtest finished", ports.Fields{
		"trades":        len(res.Trades),
		"final_equity":  res.FinalEquity,
		"total_fees":    res.TotalFees,
		"total_funding": res.TotalFunding,
		"liquidations":  res.Liquidations(),
		"stopped":       stopped,
	})
	return res, nil
}

// step runs the per-bar algorithm and reports whether the run should end.
func (e *engine) step(ctx context.Context, i int) (bool, error) {
	bar := e.bars[i]
	last := i == len(e.bars)-1
	a := e.acct

	if a.position != nil && bar.HasFunding() {
		paid := a.accrueFunding(bar.Funding())
		e.log.Debug(ctx, "Funding settled", ports.Fields{"bar": i, "rate": bar.Funding(), "paid": paid})
	}

	if a.position != nil && a.position.IsLiquidatedAt(bar.AdverseExtreme(a.position.Side)) {
		p := a.position
		trade := a.close(p.LiquidationPrice, p.SizeUSD*e.feeRate, bar, domain.ExitReasonLiquidation)
		e.log.Warn(ctx, "Position liquidated", ports.Fields{
			"bar":          i,
			"side":         string(trade.Side),
			"entry_price":  trade.EntryPrice,
			"liq_price":    trade.ExitPrice,
			"realized_pnl": trade.RealizedPnL,
		})
		a.mark(bar)
		return false, nil
	}

	decision, err := e.signal(ctx, e.bars[:i+1:i+1])
	if err != nil {
		return false, err
	}

	stop := false
	switch decision.Action {
	case domain.ActionHold:
	case domain.ActionEnterLong, domain.ActionEnterShort:
		side := decision.EntrySide()
		if a.position != nil && a.position.Side == side {
			break
		}
		if a.position != nil {
			e.exit(ctx, i, domain.ExitReasonSignal)
		}
		if last {
			e.log.Debug(ctx, "Entry on final bar skipped", ports.Fields{"bar": i, "side": string(side)})
			break
		}
		e.enter(ctx, i, side, decision)
	case domain.ActionExit:
		if a.position != nil {
			e.exit(ctx, i, domain.ExitReasonSignal)
		}
	case domain.ActionStop:
		if a.position != nil {
			e.exit(ctx, i, domain.ExitReasonForcedEnd)
		}
		e.log.Info(ctx, "Run stopped by signal function", ports.Fields{"bar": i})
		stop = true
	default:
		e.log.Warn(ctx, "Unknown action treated as hold", ports.Fields{"bar": i, "action": decision.Action.String()})
	}

	if last && a.position != nil {
		e.exit(ctx, i, domain.ExitReasonForcedEnd)
	}

	a.mark(bar)
	return stop, nil
}

// fill applies slippage against the trader: entries pay up, exits give up.
func (e *engine) fill(price float64, side domain.Side, entering bool) float64 {
	adverse := side.Direction()
	if !entering {
		adverse = -adverse
	}
	return price * (1 + adverse*e.cfg.SlippagePct)
}

func (e *engine) exit(ctx context.Context, i int, reason domain.ExitReason) {
	bar := e.bars[i]
	p := e.acct.position
	price := e.fill(bar.Close, p.Side, false)
	trade := e.acct.close(price, p.SizeUSD*e.feeRate, bar, reason)
	e.log.Debug(ctx, "Position closed", ports.Fields{
		"bar":          i,
		"side":         string(trade.Side),
		"exit_price":   trade.ExitPrice,
		"realized_pnl": trade.RealizedPnL,
		"reason":       string(reason),
	})
}

// enter opens a position. A rejected entry leaves the account flat and is only logged.
func (e *engine) enter(ctx context.Context, i int, side domain.Side, d domain.Decision) {
	bar := e.bars[i]
	reject := func(reason string, fields ports.Fields) {
		fields["bar"] = i
		fields["side"] = string(side)
		fields["reason"] = reason
		e.log.Warn(ctx, "Entry rejected", fields)
	}

	leverage := d.Leverage
	if leverage == 0 {
		leverage = e.cfg.Leverage
	}
	if !isFinite(leverage) || leverage < 1 || leverage > e.cfg.LeverageCap {
		reject("leverage outside [1, cap]", ports.Fields{"leverage": leverage, "cap": e.cfg.LeverageCap})
		return
	}
	if !isFinite(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		reject("confidence outside [0, 1]", ports.Fields{"confidence": d.Confidence})
		return
	}

	equity := e.acct.equityAt(bar.Close)
	if equity <= 0 {
		reject("no equity", ports.Fields{"equity": equity})
		return
	}

	price := e.fill(bar.Close, side, true)
	vol := 0.0
	if v, err := indicators.RealizedVolatility(e.bars[:i+1], e.cfg.VolatilityLookback); err == nil {
		vol = v
	}

	size, err := e.cfg.Sizer(sizing.Input{
		Equity:     equity,
		Confidence: d.Confidence,
		Leverage:   leverage,
		Price:      price,
		Volatility: vol,
	})
	if err != nil {
		reject("sizer failed", ports.Fields{"error": err.Error()})
		return
	}
	size = sizing.Clamp(size, equity, leverage)
	if size <= 0 {
		reject("zero size", ports.Fields{"equity": equity})
		return
	}

	liq, err := risk.LiquidationPrice(price, side, leverage, e.cfg.MaintenanceMarginRate)
	if err != nil {
		reject("liquidation price undefined", ports.Fields{"error": err.Error()})
		return
	}

	e.acct.open(&domain.Position{
		Side:             side,
		EntryPrice:       price,
		SizeUSD:          size,
		Leverage:         leverage,
		EntryTime:        bar.Time,
		EntryFee:         size * e.feeRate,
		LiquidationPrice: liq,
	})
	e.log.Debug(ctx, "Position opened", ports.Fields{
		"bar":       i,
		"side":      string(side),
		"price":     price,
		"size_usd":  size,
		"leverage":  leverage,
		"liq_price": liq,
	})
}

func (e *engine) result(processed int, stopped bool) *Result {
	a := e.acct
	final := e.cfg.InitialCapital
	if n := len(a.equity); n > 0 {
		final = a.equity[n-1].Equity
	}
	return &Result{
		Trades:         a.trades,
		Equity:         a.equity,
		InitialCapital: e.cfg.InitialCapital,
		FinalEquity:    final,
		TotalFees:      a.fees,
		TotalFunding:   a.funding,
		Bars:           processed,
		Stopped:        stopped,
	}
}
