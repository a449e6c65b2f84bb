// Package utils reads and writes bar series and trade logs as CSV.
package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
)

var barHeader = []string{"time", "open", "high", "low", "close", "volume", "funding_rate"}

var tradeHeader = []string{
	"entry_time", "exit_time", "side", "entry_price", "exit_price", "size_usd", "leverage",
	"gross_pnl", "realized_pnl", "realized_pnl_pct", "fees_paid", "funding_paid", "exit_reason",
}

// WriteBarsToCSV writes bars with an RFC3339 time column; funding_rate is empty when absent.
func WriteBarsToCSV(bars []domain.PriceBar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		funding := ""
		if b.HasFunding() {
			funding = formatFloat(*b.FundingRate)
		}
		if err := writer.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
			funding,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV reads a file written by WriteBarsToCSV. Columns are located
// by header name, so "open_time" exports and files without funding_rate also load.
// Times may be RFC3339 or Unix milliseconds.
func ReadBarsFromCSV(filename string) ([]domain.PriceBar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadBars(file)
}

// ReadBars parses bar CSV from r.
func ReadBars(r io.Reader) ([]domain.PriceBar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty CSV", ports.ErrDataError)
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrDataError, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["time"]; !ok {
		if idx, ok := cols["open_time"]; ok {
			cols["time"] = idx
		}
	}
	for _, required := range []string{"time", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ports.ErrDataError, required)
		}
	}

	var bars []domain.PriceBar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ports.ErrDataError, line, err)
		}

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}
		number := func(name string) (float64, error) {
			s := field(name)
			if s == "" {
				return 0, nil
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: line %d: bad %s %q", ports.ErrDataError, line, name, s)
			}
			return v, nil
		}

		ts, err := parseTime(field("time"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ports.ErrDataError, line, err)
		}
		bar := domain.PriceBar{Time: ts}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close}, {"volume", &bar.Volume},
		} {
			if *f.dst, err = number(f.name); err != nil {
				return nil, err
			}
		}
		if field("funding_rate") != "" {
			rate, err := number("funding_rate")
			if err != nil {
				return nil, err
			}
			bar.FundingRate = domain.Rate(rate)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// WriteTradesToCSV writes a trade log.
func WriteTradesToCSV(trades []domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := writer.Write([]string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.Side),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.SizeUSD),
			formatFloat(t.Leverage),
			formatFloat(t.GrossPnL),
			formatFloat(t.RealizedPnL),
			formatFloat(t.RealizedPnLPct),
			formatFloat(t.FeesPaid),
			formatFloat(t.FundingPaid),
			string(t.ExitReason),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing time")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q", s)
	}
	return t, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
