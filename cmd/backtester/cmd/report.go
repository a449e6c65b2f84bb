package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"perpBacktester/internal/app"
	"perpBacktester/internal/strategy/analytics"
)

func newReportCmd(a *cli) *cobra.Command {
	var limit int
	var periodsPerYear float64
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "List journaled runs or show the report of one",
		Long: `Report without arguments lists the most recent journaled runs. With a run ID
it recomputes the performance report from the stored trades and equity curve.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openJournal()
			if err != nil {
				return err
			}
			defer repo.Close()
			svc, err := app.NewBacktestService(a.log, repo)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return listRuns(cmd, svc, limit)
			}
			ppy := periodsPerYear
			if ppy <= 0 {
				ppy = a.cfg.PeriodsPerYear
			}
			return showRun(cmd, svc, args[0], ppy, a.cfg.RiskFreeRate)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().Float64Var(&periodsPerYear, "periods-per-year", 0, "annualization factor (defaults to PERIODS_PER_YEAR)")
	return cmd
}

func listRuns(cmd *cobra.Command, svc *app.BacktestService, limit int) error {
	runs, err := svc.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs journaled yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCreated\tStrategy\tSymbol\tBars\tFinal Equity\tReturn\tParameters")
	for _, r := range runs {
		ret := "n/a"
		if r.InitialCapital > 0 {
			ret = fmt.Sprintf("%.2f%%", 100*(r.FinalEquity/r.InitialCapital-1))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			r.ID, r.CreatedAt.Format(time.DateTime), r.Strategy, r.Symbol, r.Bars, r.FinalEquity, ret, r.Parameters)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, svc *app.BacktestService, id string, periodsPerYear, riskFreeRate float64) error {
	run, report, err := svc.Report(cmd.Context(), id, periodsPerYear, analytics.WithRiskFreeRate(riskFreeRate))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Strategy: %s %s\n", run.Strategy, run.Parameters)
	fmt.Fprintf(out, "Symbol: %s  Bars: %d", run.Symbol, run.Bars)
	if run.Stopped {
		fmt.Fprint(out, " (stopped by strategy)")
	}
	fmt.Fprintf(out, "\n\n%s", report.String())
	return nil
}
