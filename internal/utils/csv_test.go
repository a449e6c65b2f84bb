package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarsCSV_RoundTrip(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.PriceBar{
		{Time: start, Open: 100, High: 101.5, Low: 99.25, Close: 100.75, Volume: 12.5},
		{Time: start.Add(time.Hour), Open: 100.75, High: 102, Low: 100, Close: 101, Volume: 8, FundingRate: domain.Rate(-0.0001)},
	}

	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, WriteBarsToCSV(bars, path))

	got, err := ReadBarsFromCSV(path)
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}

func TestReadBars_KlineExportAndEpochTimes(t *testing.T) {
	in := "open_time,close_time,symbol,interval,open,high,low,close,volume\n" +
		"1706745600000,1706749199999,ETHUSDT,1h,2300,2310,2290,2305,1000\n" +
		"2024-02-01T01:00:00Z,2024-02-01T01:59:59Z,ETHUSDT,1h,2305,2320,2300,2315,900\n"

	bars, err := ReadBars(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 2315.0, bars[1].Close)
	assert.False(t, bars[1].HasFunding())
}

func TestReadBars_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no close column", in: "time,open\n2024-02-01T00:00:00Z,1\n"},
		{name: "bad number", in: "time,close\n2024-02-01T00:00:00Z,abc\n"},
		{name: "bad time", in: "time,close\nyesterday,100\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBars(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ports.ErrDataError)
		})
	}
}

func TestWriteTradesToCSV(t *testing.T) {
	entry := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	trades := []domain.Trade{{
		EntryTime:   entry,
		ExitTime:    entry.Add(3 * time.Hour),
		Side:        domain.SideShort,
		EntryPrice:  100,
		ExitPrice:   105,
		SizeUSD:     1000,
		Leverage:    10,
		GrossPnL:    -50,
		RealizedPnL: -50.8,
		FeesPaid:    0.8,
		ExitReason:  domain.ExitReasonLiquidation,
	}}

	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesToCSV(trades, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, tradeHeader, records[0])
	assert.Equal(t, "short", records[1][2])
	assert.Equal(t, "-50.8", records[1][8])
	assert.Equal(t, "liquidation", records[1][12])
}
