package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/risk"
)

type riskOptions struct {
	side        string
	entry       float64
	price       float64
	size        float64
	leverage    float64
	funding     float64
	volatility  float64
	mmr         float64
	horizon     float64
	maxLeverage float64
	maxSize     float64
	maxLiqProb  float64
	maxFunding  float64
}

func newRiskCmd(a *cli) *cobra.Command {
	o := &riskOptions{}
	def := risk.DefaultPolicy()
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Liquidation, loss and funding risk of a single position",
		Long: `Risk prints the liquidation price, the distance to it, the probability of
touching it within the horizon, the maximum loss and the funding carry, then
checks the position against pre-trade limits.

Example:
  backtester risk --side short --entry 100 --size 10000 --leverage 10 --vol 0.01 --funding 0.0001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRisk(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.side, "side", string(domain.SideLong), "position side: long or short")
	f.Float64Var(&o.entry, "entry", 0, "entry price (required)")
	f.Float64Var(&o.price, "price", 0, "current price (defaults to entry)")
	f.Float64Var(&o.size, "size", 0, "position notional in USD (required)")
	f.Float64Var(&o.leverage, "leverage", 1, "position leverage")
	f.Float64Var(&o.funding, "funding", 0, "funding rate per 8h interval, e.g. 0.0001")
	f.Float64Var(&o.volatility, "vol", 0, "per-period volatility of log price, e.g. 0.01 for 1% hourly")
	f.Float64Var(&o.mmr, "mmr", 0, "maintenance margin rate (defaults to MAINTENANCE_MARGIN_RATE)")
	f.Float64Var(&o.horizon, "horizon", risk.DefaultHorizonPeriods, "periods over which liquidation probability is evaluated")
	f.Float64Var(&o.maxLeverage, "max-leverage", def.MaxLeverage, "policy: maximum leverage")
	f.Float64Var(&o.maxSize, "max-size", def.MaxPositionSizeUSD, "policy: maximum notional in USD")
	f.Float64Var(&o.maxLiqProb, "max-liq-prob", def.MaxLiquidationProbability, "policy: liquidation probability must stay below this")
	f.Float64Var(&o.maxFunding, "max-funding", def.FundingRateThreshold, "policy: maximum absolute funding rate")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func (a *cli) runRisk(cmd *cobra.Command, o *riskOptions) error {
	side := domain.Side(o.side)
	if side != domain.SideLong && side != domain.SideShort {
		return fmt.Errorf("%w: side must be long or short, got %q", ports.ErrInvalidInput, o.side)
	}
	price := o.price
	if price == 0 {
		price = o.entry
	}
	mmr := a.cfg.MaintenanceMarginRate
	if cmd.Flags().Changed("mmr") {
		mmr = o.mmr
	}

	snap, err := risk.Metrics(risk.RiskInput{
		Side:                  side,
		EntryPrice:            o.entry,
		CurrentPrice:          price,
		SizeUSD:               o.size,
		Leverage:              o.leverage,
		FundingRate:           o.funding,
		Volatility:            o.volatility,
		MaintenanceMarginRate: &mmr,
		HorizonPeriods:        o.horizon,
	})
	if err != nil {
		return err
	}

	policy := risk.Policy{
		MaxLeverage:               o.maxLeverage,
		MaxPositionSizeUSD:        o.maxSize,
		MaxLiquidationProbability: o.maxLiqProb,
		FundingRateThreshold:      o.maxFunding,
	}
	checks := policy.Check(o.size, o.leverage, snap.LiquidationProbability, o.funding)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Liquidation Price\t%.4f\n", snap.LiquidationPrice)
	fmt.Fprintf(w, "Distance to Liquidation\t%.2f%%\n", snap.LiquidationDistancePct)
	fmt.Fprintf(w, "Liquidation Probability\t%.2f%%\n", 100*snap.LiquidationProbability)
	fmt.Fprintf(w, "Max Loss\t%.2f (%.2f%%)\n", snap.MaxLossUSD, snap.MaxLossPct)
	fmt.Fprintf(w, "Funding Cost (hourly)\t%.4f\n", snap.FundingCostHourly)
	fmt.Fprintf(w, "Funding Cost (daily)\t%.4f\n", snap.FundingCostDaily)
	if checks.Allowed() {
		fmt.Fprintln(w, "Policy\tOK")
	} else {
		for _, v := range checks.Violations {
			fmt.Fprintf(w, "%s\t%s\n", v.Code, v.Msg)
		}
	}
	return w.Flush()
}
