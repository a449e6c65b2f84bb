// Package optimization sweeps strategy parameters over isolated, parallel backtests.
package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/analytics"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/strategies"
)

// ParameterRange defines an inclusive grid for one parameter.
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult is the outcome of one parameter combination.
type OptimizationResult struct {
	Parameters map[string]float64
	Report     *analytics.Report
	Trades     int
	Score      float64
}

// StrategyFactory builds a fresh strategy for one combination.
type StrategyFactory func(params map[string]float64) (ports.Strategy, error)

// OptimizerConfig holds configuration for the optimizer.
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.Config
	ScoreFunction   func(*analytics.Report) float64 // DefaultScoreFunction when nil
	Workers         int                             // runtime.NumCPU() when <= 0
	Logger          ports.Logger
}

// Optimizer implements strategy parameter optimization.
type Optimizer struct {
	config OptimizerConfig
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance.
func NewOptimizer(config OptimizerConfig) *Optimizer {
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop{}
	}
	return &Optimizer{config: config, logger: log}
}

// Optimize runs one backtest per parameter combination and returns the
// successful runs sorted by score, best first. Combinations the factory
// rejects or whose run fails are logged and skipped.
func (o *Optimizer) Optimize(ctx context.Context, factory StrategyFactory, bars []domain.PriceBar) ([]OptimizationResult, error) {
	combinations, err := o.generateParameterCombinations()
	if err != nil {
		return nil, err
	}
	if err := backtesting.ValidateBars(bars); err != nil {
		return nil, err
	}

	slots := make([]*OptimizationResult, len(combinations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)

	for i, params := range combinations {
		i, params := i, params // per-iteration copy (Go <1.22 loop variable semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.evaluate(gctx, factory, bars, params)
			if err != nil {
				o.logger.Warn(gctx, "Parameter combination skipped", ports.Fields{
					"params": params,
					"error":  err.Error(),
				})
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimization interrupted: %w", err)
	}

	results := make([]OptimizationResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sortResultsByScore(results)

	o.logger.Info(ctx, "Optimization finished", ports.Fields{
		"combinations": len(combinations),
		"completed":    len(results),
	})
	return results, nil
}

// evaluate runs a single isolated backtest with its own account and a silent logger.
func (o *Optimizer) evaluate(ctx context.Context, factory StrategyFactory, bars []domain.PriceBar, params map[string]float64) (*OptimizationResult, error) {
	strategy, err := factory(params)
	if err != nil {
		return nil, err
	}

	cfg := o.config.Backtest
	cfg.Logger = logger.Nop{}
	res, err := backtesting.Run(ctx, bars, strategies.AsSignalFunc(strategy), cfg)
	if err != nil {
		return nil, err
	}
	report, err := analytics.ComputeMetrics(res.Trades, res.Equity, cfg.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	return &OptimizationResult{
		Parameters: params,
		Report:     report,
		Trades:     len(res.Trades),
		Score:      o.config.ScoreFunction(report),
	}, nil
}

// generateParameterCombinations expands the ranges into a full grid, in a stable order.
func (o *Optimizer) generateParameterCombinations() ([]map[string]float64, error) {
	values := make([][]float64, len(o.config.ParameterRanges))
	for i, r := range o.config.ParameterRanges {
		v, err := r.values()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	combinations := []map[string]float64{{}}
	for i, r := range o.config.ParameterRanges {
		next := make([]map[string]float64, 0, len(combinations)*len(values[i]))
		for _, base := range combinations {
			for _, v := range values[i] {
				c := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					c[k] = bv
				}
				c[r.Name] = v
				next = append(next, c)
			}
		}
		combinations = next
	}
	return combinations, nil
}

func (r ParameterRange) values() ([]float64, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: parameter range without a name", ports.ErrInvalidInput)
	}
	if r.Max < r.Min {
		return nil, fmt.Errorf("%w: parameter %s has max %v below min %v", ports.ErrInvalidInput, r.Name, r.Max, r.Min)
	}
	if r.Max == r.Min {
		return []float64{r.round(r.Min)}, nil
	}
	if r.Step <= 0 {
		return nil, fmt.Errorf("%w: parameter %s needs a positive step", ports.ErrInvalidInput, r.Name)
	}

	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	out := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		v := r.round(r.Min + float64(k)*r.Step)
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r ParameterRange) round(v float64) float64 {
	if r.IsInt {
		return math.Round(v)
	}
	return v
}

// sortResultsByScore sorts by score descending, keeping grid order for ties.
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction blends win rate, profit factor, drawdown, return and Sharpe.
// Undefined statistics contribute nothing.
func DefaultScoreFunction(r *analytics.Report) float64 {
	value := func(m analytics.Metric, limit float64) float64 {
		if !m.Defined() {
			return 0
		}
		return math.Max(-limit, math.Min(m.Value, limit))
	}

	score := 0.0
	score += value(r.WinRate, 1) * 0.3
	score += value(r.ProfitFactor, 5) * 0.2
	score += (1 - r.MaxDrawdown) * 0.2
	score += value(r.TotalReturn, 10) * 0.2
	score += value(r.SharpeRatio, 10) * 0.1
	return score
}
