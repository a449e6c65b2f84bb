package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"perpBacktester/internal/app"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/analytics"
	"perpBacktester/internal/strategy/optimization"
	"perpBacktester/internal/strategy/strategies"
)

type sweepOptions struct {
	planOptions
	workers    int
	top        int
	folds      int
	trainRatio float64
}

func newSweepCmd(a *cli) *cobra.Command {
	o := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Optimize strategy parameters over a grid",
		Long: `Sweep runs one isolated backtest per parameter combination in parallel and
ranks the results by score. The grid comes from the sweep: section of the run
file. With --folds, each fold is optimized on its train part and scored on the
following test part.

Example run file:
  strategy: ma_crossover
  data: data/BTCUSDT_1h.csv
  sweep:
    - {name: fast_period, min: 5, max: 15, step: 5, int: true}
    - {name: slow_period, min: 20, max: 40, step: 10, int: true}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, o)
		},
	}
	o.register(cmd)
	f := cmd.Flags()
	f.IntVarP(&o.workers, "workers", "w", 0, "parallel backtests (defaults to the CPU count)")
	f.IntVar(&o.top, "top", 10, "number of ranked results to print")
	f.IntVar(&o.folds, "folds", 0, "walk-forward folds (overrides the run file)")
	f.Float64Var(&o.trainRatio, "train-ratio", 0, "walk-forward train fraction (overrides the run file)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func (a *cli) runSweep(cmd *cobra.Command, o *sweepOptions) error {
	ctx := cmd.Context()
	p, err := a.resolve(cmd, &o.planOptions)
	if err != nil {
		return err
	}
	ranges := p.file.ParameterRanges()
	if len(ranges) == 0 {
		return fmt.Errorf("%w: the run file has no sweep ranges", ports.ErrInvalidInput)
	}

	// Fixed params from the run file apply to every combination; swept names win.
	fixed := p.file.Params
	name := p.file.Strategy
	factory := func(params map[string]float64) (ports.Strategy, error) {
		merged := make(map[string]float64, len(fixed)+len(params))
		for k, v := range fixed {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		return strategies.New(name, merged, nil)
	}

	opt := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: ranges,
		Backtest:        p.config,
		Workers:         o.workers,
		Logger:          a.log,
	})

	folds := p.file.Folds
	if o.folds > 0 {
		folds = o.folds
	}
	if folds > 0 {
		ratio := p.file.TrainRatio
		if o.trainRatio > 0 {
			ratio = o.trainRatio
		}
		if ratio == 0 {
			ratio = 0.7
		}
		results, err := opt.WalkForward(ctx, factory, p.bars, folds, ratio)
		if err != nil {
			return err
		}
		return printWalkForward(cmd, results)
	}

	results, err := opt.Optimize(ctx, factory, p.bars)
	if err != nil {
		return err
	}
	return printRanking(cmd, results, o.top)
}

func printRanking(cmd *cobra.Command, results []optimization.OptimizationResult, top int) error {
	if top <= 0 || top > len(results) {
		top = len(results)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Rank\tScore\tReturn\tMax DD\tSharpe\tTrades\tParameters")
	for i, r := range results[:top] {
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%.2f%%\t%s\t%d\t%s\n",
			i+1, r.Score, pct(r.Report.TotalReturn), 100*r.Report.MaxDrawdown,
			num(r.Report.SharpeRatio), r.Trades, app.FormatParams(r.Parameters))
	}
	fmt.Fprintf(w, "\n%d combinations evaluated\n", len(results))
	return w.Flush()
}

func printWalkForward(cmd *cobra.Command, results []optimization.WalkForwardResult) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Fold\tTrain Score\tTest Return\tTest Max DD\tTest Trades\tParameters")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%.2f%%\t%d\t%s\n",
			r.Fold+1, r.TrainScore, pct(r.Test.TotalReturn), 100*r.Test.MaxDrawdown,
			r.Test.TotalTrades, app.FormatParams(r.Parameters))
	}
	return w.Flush()
}

func pct(m analytics.Metric) string {
	if !m.Defined() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", 100*m.Value)
}

func num(m analytics.Metric) string {
	if !m.Defined() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", m.Value)
}
