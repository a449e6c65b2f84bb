package optimization

import (
	"context"
	"fmt"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/analytics"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/strategies"
)

// Window is one train/test split of a walk-forward evaluation.
type Window struct {
	Train []domain.PriceBar
	Test  []domain.PriceBar
}

// WalkForwardWindows cuts bars into folds consecutive, non-overlapping
// segments and splits each into a leading train part and a trailing test part.
func WalkForwardWindows(bars []domain.PriceBar, folds int, trainFraction float64) ([]Window, error) {
	if folds < 1 {
		return nil, fmt.Errorf("%w: folds must be at least 1, got %d", ports.ErrInvalidInput, folds)
	}
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, fmt.Errorf("%w: train fraction must be in (0, 1), got %v", ports.ErrInvalidInput, trainFraction)
	}

	size := len(bars) / folds
	windows := make([]Window, 0, folds)
	for f := 0; f < folds; f++ {
		segStart := f * size
		segEnd := segStart + size
		if f == folds-1 {
			segEnd = len(bars)
		}
		seg := bars[segStart:segEnd:segEnd]
		cut := int(float64(len(seg)) * trainFraction)
		if cut < 2 || len(seg)-cut < 2 {
			return nil, fmt.Errorf("%w: fold %d has %d bars, too few to split", ports.ErrInsufficientData, f, len(seg))
		}
		windows = append(windows, Window{Train: seg[:cut:cut], Test: seg[cut:]})
	}
	return windows, nil
}

// WalkForwardResult is the out-of-sample outcome of one window.
type WalkForwardResult struct {
	Fold       int
	Parameters map[string]float64
	TrainScore float64
	Test       *analytics.Report
}

// WalkForward optimizes on each window's train part and evaluates the best
// parameters on its test part.
func (o *Optimizer) WalkForward(ctx context.Context, factory StrategyFactory, bars []domain.PriceBar, folds int, trainFraction float64) ([]WalkForwardResult, error) {
	windows, err := WalkForwardWindows(bars, folds, trainFraction)
	if err != nil {
		return nil, err
	}

	out := make([]WalkForwardResult, 0, len(windows))
	for i, w := range windows {
		ranked, err := o.Optimize(ctx, factory, w.Train)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		if len(ranked) == 0 {
			return nil, fmt.Errorf("%w: fold %d produced no valid parameter set", ports.ErrInsufficientData, i)
		}
		best := ranked[0]

		strategy, err := factory(best.Parameters)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		res, err := backtesting.Run(ctx, w.Test, strategies.AsSignalFunc(strategy), o.config.Backtest)
		if err != nil {
			return nil, fmt.Errorf("fold %d test run: %w", i, err)
		}
		report, err := analytics.ComputeMetrics(res.Trades, res.Equity, o.config.Backtest.PeriodsPerYear)
		if err != nil {
			return nil, fmt.Errorf("fold %d metrics: %w", i, err)
		}

		o.logger.Info(ctx, "Walk-forward fold evaluated", ports.Fields{
			"fold":        i,
			"params":      best.Parameters,
			"train_score": best.Score,
			"test_return": report.TotalReturn.Value,
		})
		out = append(out, WalkForwardResult{Fold: i, Parameters: best.Parameters, TrainScore: best.Score, Test: report})
	}
	return out, nil
}
