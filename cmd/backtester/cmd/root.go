package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"perpBacktester/config"
	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/adapters/sqlite"
	"perpBacktester/internal/ports"
)

// cli carries what every subcommand needs once the root has run its setup.
type cli struct {
	cfg *config.Config
	log ports.Logger

	logLevel string
	dbPath   string
}

// NewRootCommand builds the command tree. Each call returns independent flag state.
func NewRootCommand() *cobra.Command {
	a := &cli{}
	root := &cobra.Command{
		Use:   "backtester",
		Short: "Leveraged perpetual futures backtester and risk calculator",
		Long: `Backtester simulates strategies on leveraged perpetual futures.

It provides tools for:
  - Running single backtests from CSV bars with fees, slippage, funding and liquidation
  - Sweeping strategy parameters in parallel, with optional walk-forward validation
  - Liquidation and funding risk for a single position
  - Position sizing (fixed fraction, Kelly, volatility target, stop-based)
  - Downloading Binance USDT-M klines with funding history
  - Journaling runs to SQLite and reporting on them later

Defaults come from the environment (.env is read when present).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "run journal path (defaults to DB_PATH)")

	root.AddCommand(
		newRunCmd(a),
		newRiskCmd(a),
		newSizeCmd(a),
		newSweepCmd(a),
		newFetchCmd(a),
		newReportCmd(a),
	)
	return root
}

// Execute runs the CLI with ctx as the base context for every command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(a.logLevel)
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	a.cfg = cfg
	a.log = logger.NewWriterLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	a.log.Debug(cmd.Context(), "Configuration loaded", ports.Fields{
		"command": cmd.Name(),
		"level":   cfg.LogLevel.String(),
		"db":      cfg.DBPath,
	})
	return nil
}

func (a *cli) openJournal() (*sqlite.Repository, error) {
	return sqlite.NewRepository(sqlite.Config{DBPath: a.cfg.DBPath, Logger: a.log})
}

// parseParams turns repeated key=value flags into strategy parameters.
func parseParams(pairs []string) (map[string]float64, error) {
	params := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: parameter %q is not key=value", ports.ErrInvalidInput, p)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %v", ports.ErrInvalidInput, k, err)
		}
		params[strings.TrimSpace(k)] = f
	}
	return params, nil
}
