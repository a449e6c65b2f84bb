package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"perpBacktester/config"
	"perpBacktester/internal/app"
	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/strategies"
	"perpBacktester/internal/utils"
)

// planOptions are the flags shared by run and sweep.
type planOptions struct {
	runFile   string
	data      string
	strategy  string
	params    []string
	capital   float64
	leverage  float64
	execution string
}

func (o *planOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.runFile, "config", "c", "", "YAML run file")
	f.StringVarP(&o.data, "data", "d", "", "CSV bar file (overrides the run file)")
	f.StringVarP(&o.strategy, "strategy", "s", strategies.MACrossoverName, "strategy name ("+strings.Join(strategies.Names(), ", ")+")")
	f.StringArrayVarP(&o.params, "param", "p", nil, "strategy parameter key=value (repeatable)")
	f.Float64Var(&o.capital, "capital", 0, "initial capital (overrides INITIAL_CAPITAL)")
	f.Float64Var(&o.leverage, "leverage", 0, "default entry leverage (defaults to the leverage cap)")
	f.StringVar(&o.execution, "execution", "", "fee schedule: maker or taker")
}

// plan is a fully resolved simulation request.
type plan struct {
	file   *config.RunFile
	config backtesting.Config
	bars   []domain.PriceBar
}

// resolve layers environment defaults, the run file and flags, in that order.
func (a *cli) resolve(cmd *cobra.Command, o *planOptions) (*plan, error) {
	rf := &config.RunFile{}
	if o.runFile != "" {
		loaded, err := config.LoadRunFile(o.runFile)
		if err != nil {
			return nil, err
		}
		rf = loaded
	}
	if rf.Strategy == "" || cmd.Flags().Changed("strategy") {
		rf.Strategy = o.strategy
	}
	if o.data != "" {
		rf.Data = o.data
	}
	if rf.Symbol == "" {
		rf.Symbol = a.cfg.Symbol
	}
	params, err := parseParams(o.params)
	if err != nil {
		return nil, err
	}
	if rf.Params == nil {
		rf.Params = make(map[string]float64, len(params))
	}
	for k, v := range params {
		rf.Params[k] = v
	}
	if o.execution != "" {
		rf.Backtest.Execution = o.execution
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}

	cfg, err := rf.Apply(a.cfg.BacktestConfig())
	if err != nil {
		return nil, err
	}
	if o.capital > 0 {
		cfg.InitialCapital = o.capital
	}
	if o.leverage > 0 {
		cfg.Leverage = o.leverage
	}
	cfg.Logger = a.log

	if rf.Data == "" {
		return nil, fmt.Errorf("%w: no bar data given (use --data or data: in the run file)", ports.ErrInvalidInput)
	}
	bars, err := utils.ReadBarsFromCSV(rf.Data)
	if err != nil {
		return nil, fmt.Errorf("load bars from %s: %w", rf.Data, err)
	}
	a.log.Info(cmd.Context(), "Loaded bars", ports.Fields{"file": rf.Data, "count": len(bars)})

	return &plan{file: rf, config: cfg, bars: bars}, nil
}

type runOptions struct {
	planOptions
	save      bool
	tradesOut string
}

func newRunCmd(a *cli) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest and print its performance report",
		Long: `Run replays a bar series through a strategy and prints the performance report.

Example:
  backtester run -d data/BTCUSDT_1h.csv -s ma_crossover -p fast_period=9 -p slow_period=21 --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBacktest(cmd, o)
		},
	}
	o.register(cmd)
	cmd.Flags().BoolVar(&o.save, "save", false, "journal the run to the SQLite database")
	cmd.Flags().StringVar(&o.tradesOut, "trades-out", "", "write the trade log to this CSV file")
	return cmd
}

func (a *cli) runBacktest(cmd *cobra.Command, o *runOptions) error {
	p, err := a.resolve(cmd, &o.planOptions)
	if err != nil {
		return err
	}
	strategy, err := strategies.New(p.file.Strategy, p.file.Params, a.log)
	if err != nil {
		return err
	}

	var journal ports.RunRepository
	if o.save {
		repo, err := a.openJournal()
		if err != nil {
			return err
		}
		defer repo.Close()
		journal = repo
	}
	svc, err := app.NewBacktestService(a.log, journal)
	if err != nil {
		return err
	}

	outcome, runErr := svc.Run(cmd.Context(), app.RunRequest{
		Strategy: strategy,
		Params:   p.file.Params,
		Symbol:   p.file.Symbol,
		Bars:     p.bars,
		Config:   p.config,
		Save:     o.save,

		RiskFreeRate: a.cfg.RiskFreeRate,
	})
	if outcome == nil {
		return runErr
	}
	res := outcome.Result

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Strategy: %s %s\n", strategy.Name(), app.FormatParams(p.file.Params))
	fmt.Fprintf(out, "Bars: %d of %d", res.Bars, len(p.bars))
	if res.Stopped {
		fmt.Fprint(out, " (stopped by strategy)")
	}
	fmt.Fprintf(out, "\n\n%s", outcome.Report.String())

	if o.tradesOut != "" {
		if err := utils.WriteTradesToCSV(res.Trades, o.tradesOut); err != nil {
			return errors.Join(runErr, fmt.Errorf("write trades: %w", err))
		}
		fmt.Fprintf(out, "\nTrades written to %s\n", o.tradesOut)
	}
	if outcome.RunID != "" {
		fmt.Fprintf(out, "\nRun saved as %s\n", outcome.RunID)
	}
	return runErr
}
