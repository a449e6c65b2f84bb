package binanceclient

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMarket serves an hourly kline grid and a fixed funding history.
type fakeMarket struct {
	start       time.Time
	count       int
	funding     []*futures.FundingRate
	err         error
	klineCalls  int
	fundingCall int
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*futures.Kline, error) {
	f.klineCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*futures.Kline
	for i := 0; i < f.count && len(out) < limit; i++ {
		open := f.start.Add(time.Duration(i) * time.Hour).UnixMilli()
		if open < startMs || open > endMs {
			continue
		}
		price := strconv.Itoa(100 + i)
		out = append(out, &futures.Kline{
			OpenTime:  open,
			Open:      price,
			High:      strconv.Itoa(101 + i),
			Low:       strconv.Itoa(99 + i),
			Close:     price,
			Volume:    "10",
			CloseTime: open + time.Hour.Milliseconds() - 1,
		})
	}
	return out, nil
}

func (f *fakeMarket) FundingRates(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]*futures.FundingRate, error) {
	f.fundingCall++
	var out []*futures.FundingRate
	for _, fr := range f.funding {
		if fr.FundingTime >= startMs && fr.FundingTime <= endMs {
			out = append(out, fr)
		}
	}
	return out, nil
}

func newTestClient(api marketData) *Client {
	return &Client{api: api, logger: logger.Nop{}}
}

func TestFetchBars_AttachesFunding(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeMarket{
		start: t0,
		count: 4,
		funding: []*futures.FundingRate{
			{Symbol: "BTCUSDT", FundingRate: "0.0001", FundingTime: t0.UnixMilli()},
			{Symbol: "BTCUSDT", FundingRate: "0.0002", FundingTime: t0.Add(90 * time.Minute).UnixMilli()},
			{Symbol: "BTCUSDT", FundingRate: "-0.0001", FundingTime: t0.Add(100 * time.Minute).UnixMilli()},
		},
	}
	c := newTestClient(api)

	bars, err := c.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 4)

	assert.Equal(t, t0, bars[0].Time)
	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, 101.0, bars[0].High)
	require.NotNil(t, bars[0].FundingRate)
	assert.InDelta(t, 0.0001, *bars[0].FundingRate, 1e-12)
	require.NotNil(t, bars[1].FundingRate)
	assert.InDelta(t, 0.0001, *bars[1].FundingRate, 1e-12)
	assert.Nil(t, bars[2].FundingRate)
	assert.Nil(t, bars[3].FundingRate)
}

func TestFetchBars_Paginates(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeMarket{start: t0, count: klinePageLimit + 10}
	c := newTestClient(api)

	bars, err := c.FetchBars(context.Background(), "ETHUSDT", "1h", t0, t0.Add(time.Duration(klinePageLimit+20)*time.Hour))
	require.NoError(t, err)
	assert.Len(t, bars, klinePageLimit+10)
	assert.Equal(t, 2, api.klineCalls)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Time.After(bars[i-1].Time))
	}
}

func TestFetchBars_InvalidInput(t *testing.T) {
	c := newTestClient(&fakeMarket{})
	t0 := time.Now()

	_, err := c.FetchBars(context.Background(), "", "1h", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = c.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestFetchBars_NoData(t *testing.T) {
	c := newTestClient(&fakeMarket{})
	t0 := time.Now()

	_, err := c.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ports.ErrInsufficientData)
}

func TestHandleError(t *testing.T) {
	c := newTestClient(&fakeMarket{})
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", &common.APIError{Code: -1003, Message: "too many requests"}, ports.ErrRateLimited},
		{"bad signature", &common.APIError{Code: -1022, Message: "signature"}, ports.ErrAuthenticationFailed},
		{"bad interval", &common.APIError{Code: -1120, Message: "invalid interval"}, ports.ErrInvalidRequest},
		{"overloaded", &common.APIError{Code: -1008, Message: "overloaded"}, ports.ErrExchangeUnavailable},
		{"unmapped code", &common.APIError{Code: -9999, Message: "?"}, ports.ErrUnknown},
		{"connection refused", errors.New("dial tcp: connection refused"), ports.ErrExchangeUnavailable},
		{"canceled", context.Canceled, context.Canceled},
		{"malformed", ports.ErrDataError, ports.ErrDataError},
		{"other", errors.New("boom"), ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.handleError(ctx, tt.err, "FetchBars")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.NoError(t, c.handleError(ctx, nil, "FetchBars"))
}

func TestFetchBars_APIErrorIsTranslated(t *testing.T) {
	c := newTestClient(&fakeMarket{err: &common.APIError{Code: -1003, Message: "slow down"}})
	t0 := time.Now()

	_, err := c.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestTranslateKline(t *testing.T) {
	_, err := translateKline(nil)
	assert.Error(t, err)

	_, err = translateKline(&futures.Kline{Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	c, err := New(Config{Logger: logger.Nop{}, UseTestnet: true})
	require.NoError(t, err)
	assert.NotNil(t, c.api)
}
