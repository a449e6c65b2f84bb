// Package analytics reduces a trade log and equity curve into performance statistics.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
)

// Metric is a statistic that may be undefined for the given history.
// Err wraps ports.ErrInsufficientData when Value is meaningless.
type Metric struct {
	Value float64
	Err   error
}

// Defined reports whether the metric could be computed.
func (m Metric) Defined() bool {
	return m.Err == nil
}

func defined(v float64) Metric {
	return Metric{Value: v}
}

func undefined(reason string) Metric {
	return Metric{Err: fmt.Errorf("%w: %s", ports.ErrInsufficientData, reason)}
}

// Report holds the performance statistics of one run.
type Report struct {
	InitialEquity float64
	FinalEquity   float64
	Periods       int // Equity-curve returns used for the ratio statistics

	TotalReturn      Metric
	AnnualizedReturn Metric
	SharpeRatio      Metric
	SortinoRatio     Metric // +Inf when no period lost money and the mean excess return is positive
	MaxDrawdown      float64
	CalmarRatio      Metric

	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              Metric
	ProfitFactor         Metric
	AverageWin           Metric
	AverageLoss          Metric
	LargestWin           Metric
	LargestLoss          Metric
	Expectancy           Metric
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	LiquidationCount     int
	AverageTradeDuration time.Duration
	Exposure             float64 // Share of the curve's time span spent in a position

	TotalPnL     float64
	TotalFees    float64
	TotalFunding float64

	MonthlyReturns []MonthlyReturn
	Drawdowns      []Drawdown
}

// Drawdown is a contiguous period below a previous equity peak.
type Drawdown struct {
	StartTime  time.Time // Time of the peak
	EndTime    time.Time // Recovery time, or the last sample when not recovered
	StartValue float64   // Peak equity
	Trough     float64
	Depth      float64 // Fraction of the peak
	Duration   time.Duration
	Recovered  bool
}

// MonthlyReturn is the fractional equity change over a calendar month (UTC).
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Option adjusts how ComputeMetrics derives the ratio statistics.
type Option func(*options)

type options struct {
	riskFreeRate float64
}

// WithRiskFreeRate sets an annual risk-free rate. Sharpe and Sortino are then
// computed on returns in excess of its per-period share (rate / periodsPerYear).
func WithRiskFreeRate(annual float64) Option {
	return func(o *options) {
		o.riskFreeRate = annual
	}
}

// ComputeMetrics is pure: the same inputs always give the same report.
// It fails only on invalid input; statistics that cannot be computed are
// reported as undefined metrics.
func ComputeMetrics(trades []domain.Trade, equity []domain.EquityPoint, periodsPerYear float64, opts ...Option) (*Report, error) {
	if math.IsNaN(periodsPerYear) || periodsPerYear <= 0 {
		return nil, fmt.Errorf("%w: periods per year must be positive, got %v", ports.ErrInvalidInput, periodsPerYear)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if math.IsNaN(o.riskFreeRate) || math.IsInf(o.riskFreeRate, 0) {
		return nil, fmt.Errorf("%w: risk-free rate must be finite, got %v", ports.ErrInvalidInput, o.riskFreeRate)
	}
	if len(equity) == 0 {
		return nil, fmt.Errorf("%w: empty equity curve", ports.ErrInvalidInput)
	}
	initial := equity[0].Equity
	if math.IsNaN(initial) || math.IsInf(initial, 0) || initial <= 0 {
		return nil, fmt.Errorf("%w: initial equity must be positive, got %v", ports.ErrInvalidInput, initial)
	}

	r := &Report{
		InitialEquity: initial,
		FinalEquity:   equity[len(equity)-1].Equity,
	}
	r.fillReturns(equity, periodsPerYear, o.riskFreeRate/periodsPerYear)
	r.fillTrades(trades)
	r.Drawdowns, r.MaxDrawdown = drawdowns(equity)
	r.MonthlyReturns = monthlyReturns(equity)
	r.Exposure = exposure(trades, equity)

	switch {
	case !r.AnnualizedReturn.Defined():
		r.CalmarRatio = undefined("annualized return undefined")
	case r.MaxDrawdown == 0:
		r.CalmarRatio = undefined("no drawdown")
	default:
		r.CalmarRatio = defined(r.AnnualizedReturn.Value / math.Abs(r.MaxDrawdown))
	}
	return r, nil
}

func (r *Report) fillReturns(equity []domain.EquityPoint, periodsPerYear, riskFreePerPeriod float64) {
	returns := periodicReturns(equity)
	r.Periods = len(returns)

	growth := r.FinalEquity / r.InitialEquity
	r.TotalReturn = defined(growth - 1)

	switch {
	case r.Periods == 0:
		r.AnnualizedReturn = undefined("no periods")
	case growth <= 0:
		r.AnnualizedReturn = defined(-1)
	default:
		r.AnnualizedReturn = defined(math.Pow(growth, periodsPerYear/float64(r.Periods)) - 1)
	}

	annualizer := math.Sqrt(periodsPerYear)
	if len(returns) < 2 {
		r.SharpeRatio = undefined("fewer than 2 periods")
		r.SortinoRatio = undefined("fewer than 2 periods")
		return
	}

	m := mean(returns)
	excess := m - riskFreePerPeriod
	if sd := stdev(returns, m); sd == 0 {
		r.SharpeRatio = undefined("zero variance")
	} else {
		r.SharpeRatio = defined(excess / sd * annualizer)
	}

	losses := negatives(returns)
	switch {
	case len(losses) == 0 && excess > 0:
		r.SortinoRatio = defined(math.Inf(1))
	case len(losses) == 0:
		r.SortinoRatio = undefined("zero variance")
	case len(losses) < 2:
		r.SortinoRatio = undefined("fewer than 2 losing periods")
	default:
		if dd := stdev(losses, mean(losses)); dd == 0 {
			r.SortinoRatio = undefined("zero downside deviation")
		} else {
			r.SortinoRatio = defined(excess / dd * annualizer)
		}
	}
}

func (r *Report) fillTrades(trades []domain.Trade) {
	r.TotalTrades = len(trades)
	if len(trades) == 0 {
		for _, m := range []*Metric{&r.WinRate, &r.AverageWin, &r.AverageLoss, &r.LargestWin, &r.LargestLoss, &r.Expectancy} {
			*m = undefined("no trades")
		}
		r.ProfitFactor = undefined("no losing trades")
		return
	}

	var grossWin, grossLoss, total float64
	largestWin, largestLoss := math.Inf(-1), math.Inf(1)
	var wins, losses int
	var held time.Duration

	for _, t := range trades {
		pnl := t.RealizedPnL
		total += pnl
		r.TotalFees += t.FeesPaid
		r.TotalFunding += t.FundingPaid
		held += t.Duration()
		if t.ExitReason == domain.ExitReasonLiquidation {
			r.LiquidationCount++
		}

		switch {
		case pnl > 0:
			r.WinningTrades++
			grossWin += pnl
			largestWin = math.Max(largestWin, pnl)
			wins++
			losses = 0
		case pnl < 0:
			r.LosingTrades++
			grossLoss += pnl
			largestLoss = math.Min(largestLoss, pnl)
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, wins)
		r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, losses)
	}

	n := float64(len(trades))
	r.TotalPnL = total
	r.AverageTradeDuration = held / time.Duration(len(trades))
	r.WinRate = defined(float64(r.WinningTrades) / n)
	r.Expectancy = defined(total / n)

	if r.WinningTrades > 0 {
		r.AverageWin = defined(grossWin / float64(r.WinningTrades))
		r.LargestWin = defined(largestWin)
	} else {
		r.AverageWin = undefined("no winning trades")
		r.LargestWin = undefined("no winning trades")
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = defined(grossLoss / float64(r.LosingTrades))
		r.LargestLoss = defined(largestLoss)
		r.ProfitFactor = defined(grossWin / -grossLoss)
	} else {
		r.AverageLoss = undefined("no losing trades")
		r.LargestLoss = undefined("no losing trades")
		r.ProfitFactor = undefined("no losing trades")
	}
}

func periodicReturns(equity []domain.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation.
func stdev(xs []float64, m float64) float64 {
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func negatives(xs []float64) []float64 {
	var out []float64
	for _, x := range xs {
		if x < 0 {
			out = append(out, x)
		}
	}
	return out
}

// drawdowns walks the curve once, tracking the running peak.
func drawdowns(equity []domain.EquityPoint) ([]Drawdown, float64) {
	var (
		periods []Drawdown
		current *Drawdown
		maxDD   float64
	)
	peak, peakTime := equity[0].Equity, equity[0].Time

	for _, pt := range equity {
		if pt.Equity >= peak {
			if current != nil {
				current.EndTime = pt.Time
				current.Duration = pt.Time.Sub(current.StartTime)
				current.Recovered = true
				periods = append(periods, *current)
				current = nil
			}
			peak, peakTime = pt.Equity, pt.Time
			continue
		}

		depth := (peak - pt.Equity) / peak
		maxDD = math.Max(maxDD, depth)
		if current == nil {
			current = &Drawdown{StartTime: peakTime, StartValue: peak, Trough: pt.Equity, Depth: depth}
		} else if pt.Equity < current.Trough {
			current.Trough = pt.Equity
			current.Depth = depth
		}
	}

	if current != nil {
		last := equity[len(equity)-1].Time
		current.EndTime = last
		current.Duration = last.Sub(current.StartTime)
		periods = append(periods, *current)
	}
	return periods, maxDD
}

func monthlyReturns(equity []domain.EquityPoint) []MonthlyReturn {
	closing := make(map[time.Time]float64)
	for _, pt := range equity {
		t := pt.Time.UTC()
		closing[time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)] = pt.Equity
	}

	months := make([]time.Time, 0, len(closing))
	for m := range closing {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	out := make([]MonthlyReturn, 0, len(months))
	prev := equity[0].Equity
	for _, m := range months {
		end := closing[m]
		ret := 0.0
		if prev > 0 {
			ret = end/prev - 1
		}
		out = append(out, MonthlyReturn{Month: m, Return: ret})
		prev = end
	}
	return out
}

func exposure(trades []domain.Trade, equity []domain.EquityPoint) float64 {
	span := equity[len(equity)-1].Time.Sub(equity[0].Time)
	if span <= 0 || len(trades) == 0 {
		return 0
	}
	var held time.Duration
	for _, t := range trades {
		held += t.Duration()
	}
	return math.Min(1, float64(held)/float64(span))
}
