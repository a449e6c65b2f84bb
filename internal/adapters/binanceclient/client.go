package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	klinePageLimit   = 1500
	fundingPageLimit = 1000
)

// marketData is the subset of the futures REST API the bar source needs.
type marketData interface {
	Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*futures.Kline, error)
	FundingRates(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]*futures.FundingRate, error)
}

type futuresMarketData struct {
	client *futures.Client
}

func (f futuresMarketData) Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*futures.Kline, error) {
	return f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
}

func (f futuresMarketData) FundingRates(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]*futures.FundingRate, error) {
	return f.client.NewFundingRateService().
		Symbol(symbol).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
}

// Client implements ports.BarSource on Binance USDT-M futures market data.
type Client struct {
	api    marketData
	logger ports.Logger
}

var _ ports.BarSource = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Klines and funding history are public endpoints.
		cfg.Logger.Debug(context.Background(), "Binance client running without API keys")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", ports.Fields{"baseURL": client.BaseURL})

	return &Client{api: futuresMarketData{client: client}, logger: cfg.Logger}, nil
}

// FetchBars downloads klines in [start, end] and attaches each funding settlement
// to the bar whose open time is the latest one not after the settlement time.
func (c *Client) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.PriceBar, error) {
	op := "FetchBars"
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ports.ErrInvalidInput)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ports.ErrInvalidInput,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	bars, err := c.fetchKlines(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no klines for %s %s in range", ports.ErrInsufficientData, symbol, interval)
	}

	rates, err := c.fetchFunding(ctx, symbol, start, end)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	attached := attachFunding(bars, rates)

	c.logger.Info(ctx, "Fetched bars", ports.Fields{
		"symbol":   symbol,
		"interval": interval,
		"bars":     len(bars),
		"funding":  attached,
	})
	return bars, nil
}

func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	from := start.UnixMilli()
	to := end.UnixMilli()

	for from <= to {
		page, err := c.api.Klines(ctx, symbol, interval, from, to, klinePageLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, bk := range page {
			bar, err := translateKline(bk)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ports.ErrDataError, err)
			}
			// Overlapping pages repeat the boundary kline.
			if n := len(bars); n > 0 && !bar.Time.After(bars[n-1].Time) {
				continue
			}
			bars = append(bars, bar)
		}
		last := page[len(page)-1]
		if len(page) < klinePageLimit || last.CloseTime <= from {
			break
		}
		from = last.CloseTime + 1
		c.logger.Debug(ctx, "Fetching next kline page", ports.Fields{"symbol": symbol, "from": from})
	}
	return bars, nil
}

type fundingEvent struct {
	time time.Time
	rate float64
}

func (c *Client) fetchFunding(ctx context.Context, symbol string, start, end time.Time) ([]fundingEvent, error) {
	var events []fundingEvent
	from := start.UnixMilli()
	to := end.UnixMilli()

	for from <= to {
		page, err := c.api.FundingRates(ctx, symbol, from, to, fundingPageLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, fr := range page {
			if fr == nil {
				continue
			}
			rate, err := strconv.ParseFloat(fr.FundingRate, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing funding rate '%s': %v", ports.ErrDataError, fr.FundingRate, err)
			}
			events = append(events, fundingEvent{time: time.UnixMilli(fr.FundingTime).UTC(), rate: rate})
		}
		last := page[len(page)-1]
		if len(page) < fundingPageLimit || last == nil || last.FundingTime < from {
			break
		}
		from = last.FundingTime + 1
	}
	return events, nil
}

// attachFunding sums the funding events of each bar and returns how many events landed.
func attachFunding(bars []domain.PriceBar, events []fundingEvent) int {
	attached := 0
	for _, ev := range events {
		// First bar opening after the event, then step back one.
		i := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(ev.time) }) - 1
		if i < 0 {
			continue
		}
		if bars[i].FundingRate == nil {
			rate := ev.rate
			bars[i].FundingRate = &rate
		} else {
			*bars[i].FundingRate += ev.rate
		}
		attached++
	}
	return attached
}

func translateKline(bk *futures.Kline) (domain.PriceBar, error) {
	if bk == nil {
		return domain.PriceBar{}, errors.New("received nil historical kline")
	}
	values := [5]float64{}
	for i, raw := range [5]string{bk.Open, bk.High, bk.Low, bk.Close, bk.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.PriceBar{}, fmt.Errorf("parsing kline field '%s': %w", raw, err)
		}
		values[i] = v
	}
	return domain.PriceBar{
		Time:   time.UnixMilli(bk.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	// Already classified by the adapter.
	if errors.Is(err, ports.ErrDataError) {
		c.logger.Error(ctx, err, operation+" returned malformed data")
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	fields := ports.Fields{"operation": operation}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1022, -2014, -2015: // Signature or API-key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1007, -1008: // Unknown, disconnected, timeout, overloaded
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s interrupted: %w", operation, err)
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}
