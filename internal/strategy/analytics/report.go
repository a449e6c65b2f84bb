package analytics

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// Row is one formatted line of a report.
type Row struct {
	Name  string
	Value string
}

// Rows formats the report for display. Rounding happens here and nowhere else.
func (r *Report) Rows() []Row {
	rows := []Row{
		{"Initial Equity", money(r.InitialEquity)},
		{"Final Equity", money(r.FinalEquity)},
		{"Total Return", percent(r.TotalReturn)},
		{"Annualized Return", percent(r.AnnualizedReturn)},
		{"Sharpe Ratio", ratio(r.SharpeRatio)},
		{"Sortino Ratio", ratio(r.SortinoRatio)},
		{"Max Drawdown", percent(defined(r.MaxDrawdown))},
		{"Calmar Ratio", ratio(r.CalmarRatio)},
		{"Total Trades", fmt.Sprint(r.TotalTrades)},
		{"Winning / Losing", fmt.Sprintf("%d / %d", r.WinningTrades, r.LosingTrades)},
		{"Win Rate", percent(r.WinRate)},
		{"Profit Factor", ratio(r.ProfitFactor)},
		{"Average Win", moneyMetric(r.AverageWin)},
		{"Average Loss", moneyMetric(r.AverageLoss)},
		{"Largest Win", moneyMetric(r.LargestWin)},
		{"Largest Loss", moneyMetric(r.LargestLoss)},
		{"Expectancy", moneyMetric(r.Expectancy)},
		{"Max Consecutive Wins", fmt.Sprint(r.MaxConsecutiveWins)},
		{"Max Consecutive Losses", fmt.Sprint(r.MaxConsecutiveLosses)},
		{"Liquidations", fmt.Sprint(r.LiquidationCount)},
		{"Average Trade Duration", r.AverageTradeDuration.String()},
		{"Exposure", percent(defined(r.Exposure))},
		{"Total P&L", money(r.TotalPnL)},
		{"Total Fees", money(r.TotalFees)},
		{"Total Funding", money(r.TotalFunding)},
	}
	return rows
}

// String renders Rows as an aligned two-column table followed by monthly returns.
func (r *Report) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 3, ' ', 0)
	for _, row := range r.Rows() {
		fmt.Fprintf(w, "%s\t%s\n", row.Name, row.Value)
	}
	if len(r.MonthlyReturns) > 0 {
		fmt.Fprintln(w, "\nMonth\tReturn")
		for _, m := range r.MonthlyReturns {
			fmt.Fprintf(w, "%s\t%s\n", m.Month.Format("2006-01"), percent(defined(m.Return)))
		}
	}
	w.Flush()
	return sb.String()
}

func money(v float64) string {
	if s, ok := special(v); ok {
		return s
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func moneyMetric(m Metric) string {
	if !m.Defined() {
		return "n/a"
	}
	return money(m.Value)
}

func percent(m Metric) string {
	if !m.Defined() {
		return "n/a"
	}
	if s, ok := special(m.Value); ok {
		return s
	}
	return decimal.NewFromFloat(m.Value).Shift(2).StringFixed(2) + "%"
}

func ratio(m Metric) string {
	if !m.Defined() {
		return "n/a"
	}
	if s, ok := special(m.Value); ok {
		return s
	}
	return decimal.NewFromFloat(m.Value).StringFixed(2)
}

// special handles values decimal cannot represent.
func special(v float64) (string, bool) {
	switch {
	case math.IsInf(v, 1):
		return "+Inf", true
	case math.IsInf(v, -1):
		return "-Inf", true
	case math.IsNaN(v):
		return "NaN", true
	}
	return "", false
}
