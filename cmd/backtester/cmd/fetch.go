package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"perpBacktester/internal/adapters/binanceclient"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/utils"
)

type fetchOptions struct {
	symbol   string
	interval string
	from     string
	to       string
	out      string
}

func newFetchCmd(a *cli) *cobra.Command {
	o := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download Binance futures klines with funding rates to CSV",
		Long: `Fetch downloads USDT-M perpetual klines and funding rate history from Binance
and writes them as a bar CSV that run and sweep can read.

Example:
  backtester fetch --symbol ETHUSDT --interval 1h --from 2024-01-01 --to 2024-06-30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.symbol, "symbol", "", "futures symbol (defaults to SYMBOL)")
	f.StringVar(&o.interval, "interval", "", "kline interval (defaults to INTERVAL)")
	f.StringVar(&o.from, "from", "", "start date, YYYY-MM-DD or RFC3339 (defaults to 90 days ago)")
	f.StringVar(&o.to, "to", "", "end date, YYYY-MM-DD or RFC3339 (defaults to now)")
	f.StringVarP(&o.out, "out", "o", "", "output CSV (defaults to data/<symbol>_<interval>_<from>_to_<to>.csv)")
	return cmd
}

func (a *cli) runFetch(cmd *cobra.Command, o *fetchOptions) error {
	ctx := cmd.Context()
	symbol := o.symbol
	if symbol == "" {
		symbol = a.cfg.Symbol
	}
	interval := o.interval
	if interval == "" {
		interval = a.cfg.Interval
	}

	end := time.Now().UTC()
	if o.to != "" {
		t, err := parseDate(o.to)
		if err != nil {
			return err
		}
		end = t
	}
	start := end.AddDate(0, 0, -90)
	if o.from != "" {
		t, err := parseDate(o.from)
		if err != nil {
			return err
		}
		start = t
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     a.cfg.APIKey,
		SecretKey:  a.cfg.SecretKey,
		UseTestnet: a.cfg.IsTestnet,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	bars, err := client.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return err
	}

	out := o.out
	if out == "" {
		out = filepath.Join("data", fmt.Sprintf("%s_%s_%s_to_%s.csv",
			symbol, interval, start.Format("20060102"), end.Format("20060102")))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := utils.WriteBarsToCSV(bars, out); err != nil {
		return fmt.Errorf("write bars: %w", err)
	}
	a.log.Info(ctx, "Saved bars", ports.Fields{"file": out, "count": len(bars)})
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bars to %s\n", len(bars), out)
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is neither YYYY-MM-DD nor RFC3339", ports.ErrInvalidInput, s)
	}
	return t.UTC(), nil
}
