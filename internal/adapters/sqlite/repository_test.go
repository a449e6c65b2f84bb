package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...ports.Fields) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...ports.Fields)  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...ports.Fields)  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...ports.Fields) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "run-journal-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "nested", "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func sampleRun() (*ports.RunRecord, []domain.Trade, []domain.EquityPoint) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		{
			EntryTime: t0, ExitTime: t0.Add(2 * time.Hour), Side: domain.SideLong,
			EntryPrice: 100, ExitPrice: 110, SizeUSD: 3000, Leverage: 3,
			GrossPnL: 300, RealizedPnL: 297.6, RealizedPnLPct: 29.76,
			FeesPaid: 2.4, FundingPaid: 0, ExitReason: domain.ExitReasonSignal,
		},
		{
			EntryTime: t0.Add(3 * time.Hour), ExitTime: t0.Add(4 * time.Hour), Side: domain.SideShort,
			EntryPrice: 110, ExitPrice: 115.5, SizeUSD: 2000, Leverage: 2,
			GrossPnL: -100, RealizedPnL: -101.8, RealizedPnLPct: -10.18,
			FeesPaid: 1.6, FundingPaid: 0.2, ExitReason: domain.ExitReasonLiquidation,
		},
	}
	equity := []domain.EquityPoint{
		{Time: t0, Equity: 1000, Cash: 1000},
		{Time: t0.Add(time.Hour), Equity: 1150, Cash: 998.8},
		{Time: t0.Add(4 * time.Hour), Equity: 1195.8, Cash: 1195.8, Drawdown: 0.0},
	}
	run := &ports.RunRecord{
		Strategy:       "ma_crossover",
		Symbol:         "BTCUSDT",
		Parameters:     "fast_period=9 slow_period=21",
		InitialCapital: 1000,
		FinalEquity:    1195.8,
		TotalFees:      4,
		TotalFunding:   0.2,
		Bars:           3,
	}
	return run, trades, equity
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRepository_SaveAndGetRun(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	run, trades, equity := sampleRun()
	id, err := repo.SaveRun(ctx, run, trades, equity)
	require.NoError(t, err)
	assert.Len(t, id, 26)
	assert.Equal(t, id, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.Strategy, got.Strategy)
	assert.Equal(t, run.Symbol, got.Symbol)
	assert.Equal(t, run.Parameters, got.Parameters)
	assert.InDelta(t, run.FinalEquity, got.FinalEquity, 1e-9)
	assert.InDelta(t, run.TotalFunding, got.TotalFunding, 1e-9)
	assert.Equal(t, 3, got.Bars)
	assert.False(t, got.Stopped)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))

	gotTrades, err := repo.ListTrades(ctx, id)
	require.NoError(t, err)
	require.Len(t, gotTrades, 2)
	for i := range trades {
		assert.Equal(t, trades[i].Side, gotTrades[i].Side)
		assert.Equal(t, trades[i].ExitReason, gotTrades[i].ExitReason)
		assert.True(t, trades[i].EntryTime.Equal(gotTrades[i].EntryTime))
		assert.True(t, trades[i].ExitTime.Equal(gotTrades[i].ExitTime))
		assert.InDelta(t, trades[i].RealizedPnL, gotTrades[i].RealizedPnL, 1e-9)
		assert.InDelta(t, trades[i].FundingPaid, gotTrades[i].FundingPaid, 1e-9)
	}

	gotEquity, err := repo.ListEquity(ctx, id)
	require.NoError(t, err)
	require.Len(t, gotEquity, 3)
	for i := range equity {
		assert.True(t, equity[i].Time.Equal(gotEquity[i].Time))
		assert.InDelta(t, equity[i].Equity, gotEquity[i].Equity, 1e-9)
		assert.InDelta(t, equity[i].Cash, gotEquity[i].Cash, 1e-9)
	}
}

func TestRepository_GetRunNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetRun(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_SaveRunValidation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.SaveRun(ctx, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = repo.SaveRun(ctx, &ports.RunRecord{}, nil, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestRepository_ListRuns(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		run, _, _ := sampleRun()
		run.Stopped = i == 1
		id, err := repo.SaveRun(ctx, run, nil, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.True(t, runs[1].Stopped)

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	trades, err := repo.ListTrades(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestNewRunID_Monotonic(t *testing.T) {
	now := time.Now()
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := newRunID(now)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}
