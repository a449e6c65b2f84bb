package optimization

import (
	"context"
	"math"
	"testing"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/strategy/analytics"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/strategies"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineBars(n int) []domain.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/8) + float64(i)*0.05
		bars[i] = domain.PriceBar{Time: start.Add(time.Duration(i) * time.Hour), Open: c, High: c * 1.001, Low: c * 0.999, Close: c}
	}
	return bars
}

func maFactory(params map[string]float64) (ports.Strategy, error) {
	return strategies.New(strategies.MACrossoverName, params, nil)
}

func backtestConfig() backtesting.Config {
	return backtesting.Config{
		InitialCapital:        10000,
		LeverageCap:           2,
		TakerFeePct:           0.0004,
		MaintenanceMarginRate: 0.01,
		PeriodsPerYear:        8760,
	}
}

func TestOptimizer_Optimize(t *testing.T) {
	optimizer := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: "fast_period", Min: 3, Max: 9, Step: 3, IsInt: true},
			{Name: "slow_period", Min: 6, Max: 18, Step: 6, IsInt: true},
		},
		Backtest: backtestConfig(),
		Workers:  4,
	})

	results, err := optimizer.Optimize(context.Background(), maFactory, sineBars(300))
	require.NoError(t, err)

	// fast must be below slow: (3,6) (3,12) (3,18) (6,12) (6,18) (9,12) (9,18)
	assert.Len(t, results, 7)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.Less(t, r.Parameters["fast_period"], r.Parameters["slow_period"])
		require.NotNil(t, r.Report)
	}
}

func TestOptimizer_Deterministic(t *testing.T) {
	cfg := OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: "fast_period", Min: 2, Max: 6, Step: 2, IsInt: true},
			{Name: "slow_period", Min: 10, Max: 20, Step: 5, IsInt: true},
		},
		Backtest: backtestConfig(),
	}
	bars := sineBars(200)

	serial := cfg
	serial.Workers = 1
	a, err := NewOptimizer(serial).Optimize(context.Background(), maFactory, bars)
	require.NoError(t, err)

	parallel := cfg
	parallel.Workers = 8
	b, err := NewOptimizer(parallel).Optimize(context.Background(), maFactory, bars)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Parameters, b[i].Parameters)
		assert.Equal(t, a[i].Score, b[i].Score)
	}
}

func TestOptimizer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	optimizer := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{{Name: "fast_period", Min: 2, Max: 4, Step: 1, IsInt: true}},
		Backtest:        backtestConfig(),
	})
	_, err := optimizer.Optimize(ctx, maFactory, sineBars(100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateParameterCombinations(t *testing.T) {
	optimizer := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: "param1", Min: 1, Max: 2, Step: 1, IsInt: true},
			{Name: "param2", Min: 0.1, Max: 0.3, Step: 0.1},
		},
	})
	combinations, err := optimizer.generateParameterCombinations()
	require.NoError(t, err)

	require.Len(t, combinations, 6)
	assert.Equal(t, 1.0, combinations[0]["param1"])
	assert.InDelta(t, 0.1, combinations[0]["param2"], 1e-12)
	assert.InDelta(t, 0.3, combinations[5]["param2"], 1e-12)
	assert.Equal(t, 2.0, combinations[5]["param1"])

	single := NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: "x", Min: 5, Max: 5}}})
	combinations, err = single.generateParameterCombinations()
	require.NoError(t, err)
	assert.Equal(t, []map[string]float64{{"x": 5}}, combinations)

	bad := NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: "x", Min: 1, Max: 5}}})
	_, err = bad.generateParameterCombinations()
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestDefaultScoreFunction(t *testing.T) {
	report := &analytics.Report{
		WinRate:      analytics.Metric{Value: 0.6},
		ProfitFactor: analytics.Metric{Value: 2.0},
		MaxDrawdown:  0.2,
		TotalReturn:  analytics.Metric{Value: 0.5},
		SharpeRatio:  analytics.Metric{Value: 1.5},
	}
	expected := 0.6*0.3 + 2.0*0.2 + 0.8*0.2 + 0.5*0.2 + 1.5*0.1
	assert.InDelta(t, expected, DefaultScoreFunction(report), 1e-12)

	report.SharpeRatio = analytics.Metric{Err: ports.ErrInsufficientData}
	report.ProfitFactor = analytics.Metric{Value: 1000}
	expected = 0.6*0.3 + 5*0.2 + 0.8*0.2 + 0.5*0.2
	assert.InDelta(t, expected, DefaultScoreFunction(report), 1e-12)
}

func TestWalkForwardWindows(t *testing.T) {
	bars := sineBars(103)
	windows, err := WalkForwardWindows(bars, 4, 0.75)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	total := 0
	for i, w := range windows {
		assert.True(t, w.Train[len(w.Train)-1].Time.Before(w.Test[0].Time))
		if i > 0 {
			prev := windows[i-1].Test
			assert.True(t, prev[len(prev)-1].Time.Before(w.Train[0].Time))
		}
		total += len(w.Train) + len(w.Test)
	}
	assert.Equal(t, 103, total)
	assert.Len(t, windows[0].Train, 18)
	assert.Len(t, windows[3].Test, 7)

	_, err = WalkForwardWindows(bars, 0, 0.5)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = WalkForwardWindows(bars, 2, 1)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = WalkForwardWindows(bars[:6], 3, 0.5)
	assert.ErrorIs(t, err, ports.ErrInsufficientData)
}

func TestOptimizer_WalkForward(t *testing.T) {
	optimizer := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: "fast_period", Min: 3, Max: 5, Step: 2, IsInt: true},
			{Name: "slow_period", Min: 10, Max: 10, IsInt: true},
		},
		Backtest: backtestConfig(),
	})

	results, err := optimizer.WalkForward(context.Background(), maFactory, sineBars(400), 2, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i, r.Fold)
		assert.Contains(t, []float64{3, 5}, r.Parameters["fast_period"])
		require.NotNil(t, r.Test)
	}
}
