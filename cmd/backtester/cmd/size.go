package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"perpBacktester/internal/ports"
	"perpBacktester/internal/sizing"
)

// Sizing methods of the size command.
const (
	methodFixed      = "fixed"
	methodKelly      = "kelly"
	methodVolatility = "volatility"
	methodRisk       = "risk"
)

type sizeOptions struct {
	method     string
	equity     float64
	fraction   float64
	winRate    float64
	avgWin     float64
	avgLoss    float64
	kellyCap   float64
	target     float64
	volatility float64
	riskPct    float64
	entry      float64
	stop       float64
	leverage   float64
	dampening  float64
}

func newSizeCmd(a *cli) *cobra.Command {
	o := &sizeOptions{}
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Compute a position size in USD",
		Long: `Size computes a notional position size with one of the sizing methods:

  fixed       equity x fraction
  kelly       equity x capped Kelly fraction from win rate and average win/loss
  volatility  equity x target / volatility
  risk        size that loses risk-pct of equity if the stop is hit

A leverage above 1 shrinks the base size by leverage^dampening, and the result
is clamped to equity x LEVERAGE_CAP.

Example:
  backtester size --method kelly --equity 10000 --win-rate 0.55 --avg-win 120 --avg-loss 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSize(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.method, "method", "m", methodFixed, "fixed, kelly, volatility or risk")
	f.Float64Var(&o.equity, "equity", 0, "account equity in USD (defaults to INITIAL_CAPITAL)")
	f.Float64Var(&o.fraction, "fraction", 0.1, "fixed: fraction of equity")
	f.Float64Var(&o.winRate, "win-rate", 0, "kelly: probability of a winning trade")
	f.Float64Var(&o.avgWin, "avg-win", 0, "kelly: average win")
	f.Float64Var(&o.avgLoss, "avg-loss", 0, "kelly: average loss (positive)")
	f.Float64Var(&o.kellyCap, "kelly-cap", 0.25, "kelly: maximum fraction")
	f.Float64Var(&o.target, "target", 0.01, "volatility: target risk fraction of equity per one-sigma move")
	f.Float64Var(&o.volatility, "vol", 0, "volatility: per-period volatility")
	f.Float64Var(&o.riskPct, "risk-pct", 0.01, "risk: fraction of equity lost at the stop")
	f.Float64Var(&o.entry, "entry", 0, "risk: entry price")
	f.Float64Var(&o.stop, "stop", 0, "risk: stop price")
	f.Float64Var(&o.leverage, "leverage", 1, "position leverage")
	f.Float64Var(&o.dampening, "dampening", 0, "size reduction exponent applied to leverage")
	return cmd
}

func (a *cli) runSize(cmd *cobra.Command, o *sizeOptions) error {
	equity := o.equity
	if equity == 0 {
		equity = a.cfg.InitialCapital
	}

	var (
		base float64
		err  error
	)
	switch o.method {
	case methodFixed:
		base, err = sizing.FixedFraction(equity, o.fraction)
	case methodKelly:
		base, err = sizing.KellyCriterion(o.winRate, o.avgWin, o.avgLoss, equity, o.kellyCap)
	case methodVolatility:
		base, err = sizing.VolatilityAdjusted(equity, o.target, o.volatility)
	case methodRisk:
		base, err = sizing.RiskBased(equity, o.riskPct, o.entry, o.stop)
	default:
		return fmt.Errorf("%w: unknown sizing method %q", ports.ErrInvalidInput, o.method)
	}
	if err != nil {
		return err
	}

	adjusted, err := sizing.LeverageAdjusted(base, o.leverage, o.dampening)
	if err != nil {
		return err
	}
	size := sizing.Clamp(adjusted, equity, a.cfg.LeverageCap)
	effective, err := sizing.LeverageForPosition(equity, size)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Method\t%s\n", o.method)
	fmt.Fprintf(w, "Equity\t%.2f\n", equity)
	fmt.Fprintf(w, "Base Size\t%.2f\n", base)
	fmt.Fprintf(w, "Position Size\t%.2f\n", size)
	fmt.Fprintf(w, "Max Notional\t%.2f\n", sizing.MaxNotional(equity, a.cfg.LeverageCap))
	fmt.Fprintf(w, "Effective Leverage\t%.2fx\n", effective)
	return w.Flush()
}
