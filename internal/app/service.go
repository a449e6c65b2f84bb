package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/analytics"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/strategies"
)

// BacktestService ties a strategy run to its metrics and, optionally, the run journal.
type BacktestService struct {
	logger  ports.Logger
	journal ports.RunRepository // nil disables saving and reporting
}

// NewBacktestService creates a new application service instance.
func NewBacktestService(logger ports.Logger, journal ports.RunRepository) (*BacktestService, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for BacktestService", ports.ErrConfigurationError)
	}
	return &BacktestService{logger: logger, journal: journal}, nil
}

// RunRequest describes one simulation.
type RunRequest struct {
	Strategy ports.Strategy
	Params   map[string]float64 // Recorded with the run
	Symbol   string
	Bars     []domain.PriceBar
	Config   backtesting.Config
	Save     bool

	RiskFreeRate float64 // Annual; zero computes Sharpe and Sortino on raw returns
}

// RunOutcome is what a run produced. Result and Report are set even when the
// strategy aborted the run part way.
type RunOutcome struct {
	Result *backtesting.Result
	Report *analytics.Report
	RunID  string
}

// Run simulates the request, computes its report and journals it when asked.
// A strategy error is returned together with the partial outcome.
func (s *BacktestService) Run(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if req.Strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", ports.ErrInvalidInput)
	}
	if req.Save && s.journal == nil {
		return nil, fmt.Errorf("%w: no run journal configured", ports.ErrConfigurationError)
	}
	if req.Config.Logger == nil {
		req.Config.Logger = s.logger
	}

	res, runErr := backtesting.Run(ctx, req.Bars, strategies.AsSignalFunc(req.Strategy), req.Config)
	if res == nil {
		return nil, runErr
	}

	report, err := analytics.ComputeMetrics(res.Trades, res.Equity, req.Config.PeriodsPerYear,
		analytics.WithRiskFreeRate(req.RiskFreeRate))
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	out := &RunOutcome{Result: res, Report: report}

	if req.Save {
		record := &ports.RunRecord{
			Strategy:       req.Strategy.Name(),
			Symbol:         req.Symbol,
			Parameters:     FormatParams(req.Params),
			InitialCapital: res.InitialCapital,
			FinalEquity:    res.FinalEquity,
			TotalFees:      res.TotalFees,
			TotalFunding:   res.TotalFunding,
			Bars:           res.Bars,
			Stopped:        res.Stopped,
		}
		id, err := s.journal.SaveRun(ctx, record, res.Trades, res.Equity)
		if err != nil {
			return out, errors.Join(runErr, err)
		}
		out.RunID = id
	}
	return out, runErr
}

// Report loads a journaled run and recomputes its metrics.
func (s *BacktestService) Report(ctx context.Context, runID string, periodsPerYear float64, opts ...analytics.Option) (*ports.RunRecord, *analytics.Report, error) {
	if s.journal == nil {
		return nil, nil, fmt.Errorf("%w: no run journal configured", ports.ErrConfigurationError)
	}
	run, err := s.journal.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	trades, err := s.journal.ListTrades(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	equity, err := s.journal.ListEquity(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	report, err := analytics.ComputeMetrics(trades, equity, periodsPerYear, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return run, report, nil
}

// Runs lists the most recent journaled runs.
func (s *BacktestService) Runs(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("%w: no run journal configured", ports.ErrConfigurationError)
	}
	return s.journal.ListRuns(ctx, limit)
}

// FormatParams renders parameters as sorted key=value pairs.
func FormatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatFloat(params[k], 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}
