package risk

import (
	"errors"
	"math"
	"testing"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name     string
		entry    float64
		side     domain.Side
		leverage float64
		mmr      float64
		want     float64
		wantErr  bool
	}{
		{name: "long 10x", entry: 100, side: domain.SideLong, leverage: 10, mmr: 0.05, want: 95},
		{name: "short 10x", entry: 100, side: domain.SideShort, leverage: 10, mmr: 0.05, want: 105},
		{name: "long 3x", entry: 100, side: domain.SideLong, leverage: 3, mmr: 0.05, want: 100 * (1 - 1.0/3 + 0.05)},
		{name: "long 1x no margin", entry: 200, side: domain.SideLong, leverage: 1, mmr: 0, want: 0},
		{name: "leverage below one", entry: 100, side: domain.SideLong, leverage: 0.5, mmr: 0.05, wantErr: true},
		{name: "margin rate at boundary", entry: 100, side: domain.SideLong, leverage: 10, mmr: 0.1, wantErr: true},
		{name: "negative margin rate", entry: 100, side: domain.SideShort, leverage: 2, mmr: -0.01, wantErr: true},
		{name: "zero entry", entry: 0, side: domain.SideLong, leverage: 2, mmr: 0.01, wantErr: true},
		{name: "unknown side", entry: 100, side: domain.Side("flat"), leverage: 2, mmr: 0.01, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LiquidationPrice(tt.entry, tt.side, tt.leverage, tt.mmr)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ports.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLiquidationPrice_SideOrdering(t *testing.T) {
	for _, leverage := range []float64{1.5, 2, 3, 5, 10, 25, 50, 100} {
		for _, mmr := range []float64{0, 0.001, 0.5 / leverage, 0.99 / leverage} {
			long, err := LiquidationPrice(1000, domain.SideLong, leverage, mmr)
			require.NoError(t, err)
			short, err := LiquidationPrice(1000, domain.SideShort, leverage, mmr)
			require.NoError(t, err)

			assert.Less(t, long, 1000.0, "leverage %v mmr %v", leverage, mmr)
			assert.Greater(t, short, 1000.0, "leverage %v mmr %v", leverage, mmr)
		}
	}
}

func TestLiquidationDistancePct(t *testing.T) {
	d, err := LiquidationDistancePct(100, 95, domain.SideLong)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	d, err = LiquidationDistancePct(100, 105, domain.SideShort)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	d, err = LiquidationDistancePct(90, 95, domain.SideLong)
	require.NoError(t, err)
	assert.Less(t, d, 0.0)

	_, err = LiquidationDistancePct(0, 95, domain.SideLong)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestLiquidationProbability_Monotonic(t *testing.T) {
	const liq = 95.0

	prev := -1.0
	for _, vol := range []float64{0, 0.001, 0.005, 0.01, 0.02, 0.05, 0.1} {
		p, err := LiquidationProbability(100, liq, vol, 24)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, prev, "volatility %v", vol)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}

	prev = -1.0
	for _, horizon := range []float64{1, 4, 24, 96, 1000} {
		p, err := LiquidationProbability(100, liq, 0.01, horizon)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, prev, "horizon %v", horizon)
		prev = p
	}

	// Shrinking the distance to the barrier never lowers the probability.
	prev = -1.0
	for _, current := range []float64{150, 120, 105, 100, 97, 96, 95.5, 95.01} {
		p, err := LiquidationProbability(current, liq, 0.01, 24)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, prev, "current %v", current)
		prev = p
	}
	assert.Greater(t, prev, 0.99)
}

func TestLiquidationProbability_Limits(t *testing.T) {
	p, err := LiquidationProbability(95, 95, 0.01, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = LiquidationProbability(100, 95, 0, 24)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	// Matches the reflection-principle closed form 2*(1 - Phi(z)).
	d := math.Abs(math.Log(95.0 / 100.0))
	z := d / (0.01 * math.Sqrt(24))
	want := 2 * (1 - 0.5*(1+math.Erf(z/math.Sqrt2)))
	p, err = LiquidationProbability(100, 95, 0.01, 24)
	require.NoError(t, err)
	assert.InDelta(t, want, p, 1e-12)

	_, err = LiquidationProbability(100, 95, -0.1, 24)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = LiquidationProbability(100, 95, 0.1, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = LiquidationProbability(100, math.NaN(), 0.1, 1)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestFundingCost(t *testing.T) {
	assert.InDelta(t, 30.0, FundingCost(100000, 0.0001, 3), 1e-9)
	assert.InDelta(t, 30.0, SignedFundingCost(domain.SideLong, 100000, 0.0001, 3), 1e-9)
	assert.InDelta(t, -30.0, SignedFundingCost(domain.SideShort, 100000, 0.0001, 3), 1e-9)
	assert.InDelta(t, -30.0, SignedFundingCost(domain.SideLong, 100000, -0.0001, 3), 1e-9)
}

func TestMetrics(t *testing.T) {
	snap, err := Metrics(RiskInput{
		Side:         domain.SideLong,
		EntryPrice:   100,
		CurrentPrice: 100,
		SizeUSD:      10000,
		Leverage:     10,
		FundingRate:  0.0001,
		Volatility:   0.01,
	})
	require.NoError(t, err)

	assert.InDelta(t, 95.0, snap.LiquidationPrice, 1e-9)
	assert.InDelta(t, 5.0, snap.LiquidationDistancePct, 1e-9)
	assert.InDelta(t, 500.0, snap.MaxLossUSD, 1e-9)
	assert.InDelta(t, 5.0, snap.MaxLossPct, 1e-9)
	assert.InDelta(t, 10000*0.0001/8, snap.FundingCostHourly, 1e-12)
	assert.InDelta(t, 10000*0.0001*3, snap.FundingCostDaily, 1e-12)
	assert.Greater(t, snap.LiquidationProbability, 0.0)
	assert.Less(t, snap.LiquidationProbability, 1.0)
}

func TestMetrics_PastLiquidation(t *testing.T) {
	snap, err := Metrics(RiskInput{
		Side:         domain.SideShort,
		EntryPrice:   100,
		CurrentPrice: 110,
		SizeUSD:      1000,
		Leverage:     10,
		Volatility:   0.01,
	})
	require.NoError(t, err)
	assert.Less(t, snap.LiquidationDistancePct, 0.0)
	assert.Equal(t, 1.0, snap.LiquidationProbability)
}

func TestMetrics_MaintenanceMarginRate(t *testing.T) {
	zero, custom := 0.0, 0.01
	tests := []struct {
		name string
		mmr  *float64
		liq  float64
	}{
		{name: "default when nil", mmr: nil, liq: 95},
		{name: "explicit zero", mmr: &zero, liq: 90},
		{name: "custom", mmr: &custom, liq: 91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Metrics(RiskInput{
				Side:                  domain.SideLong,
				EntryPrice:            100,
				CurrentPrice:          100,
				SizeUSD:               10000,
				Leverage:              10,
				MaintenanceMarginRate: tt.mmr,
			})
			require.NoError(t, err)
			assert.InDelta(t, tt.liq, snap.LiquidationPrice, 1e-9)
		})
	}
}

func TestMetrics_InvalidInput(t *testing.T) {
	_, err := Metrics(RiskInput{EntryPrice: 100, CurrentPrice: 100, SizeUSD: 0, Leverage: 2})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = Metrics(RiskInput{EntryPrice: 100, CurrentPrice: 100, SizeUSD: 1000, Leverage: 0})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestPeriodicVolatility(t *testing.T) {
	assert.InDelta(t, 0.8/math.Sqrt(8760), PeriodicVolatility(0.8, 8760), 1e-12)
	assert.Equal(t, 0.0, PeriodicVolatility(0.8, 0))
}
