package cmd

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"perpBacktester/internal/app"
	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeSineBars writes an hourly oscillating series so crossover strategies trade.
func writeSineBars(t *testing.T, dir string, n int) string {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/8)
		bars[i] = domain.PriceBar{
			Time:  t0.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	path := filepath.Join(dir, "bars.csv")
	require.NoError(t, utils.WriteBarsToCSV(bars, path))
	return path
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"fast_period=5", " slow_period = 20 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"fast_period": 5, "slow_period": 20}, params)
	assert.Equal(t, "fast_period=5 slow_period=20", app.FormatParams(params))

	_, err = parseParams([]string{"fast_period"})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = parseParams([]string{"fast_period=abc"})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestRiskCommand(t *testing.T) {
	out, err := execute(t, "risk", "--side", "short", "--entry", "100", "--size", "10000",
		"--leverage", "10", "--mmr", "0.05", "--vol", "0.01", "--funding", "0.0001")
	require.NoError(t, err)
	assert.Contains(t, out, "Liquidation Price")
	assert.Contains(t, out, "105.0000")
	assert.Contains(t, out, "LEVERAGE_TOO_HIGH")

	out, err = execute(t, "risk", "--side", "short", "--entry", "100", "--size", "10000",
		"--leverage", "10", "--mmr", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "110.0000")

	_, err = execute(t, "risk", "--side", "sideways", "--entry", "100", "--size", "1000")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = execute(t, "risk", "--entry", "100")
	assert.Error(t, err)
}

func TestSizeCommand(t *testing.T) {
	out, err := execute(t, "size", "--method", "fixed", "--equity", "10000", "--fraction", "0.1")
	require.NoError(t, err)
	assert.Regexp(t, `Position Size\s+1000\.00`, out)
	assert.Regexp(t, `Effective Leverage\s+0\.10x`, out)

	out, err = execute(t, "size", "--method", "risk", "--equity", "10000", "--risk-pct", "0.01",
		"--entry", "100", "--stop", "95")
	require.NoError(t, err)
	assert.Regexp(t, `Position Size\s+2000\.00`, out)

	_, err = execute(t, "size", "--method", "martingale", "--equity", "10000")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = execute(t, "size", "--method", "volatility", "--equity", "10000")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestRunSaveAndReport(t *testing.T) {
	dir := t.TempDir()
	data := writeSineBars(t, dir, 200)
	db := filepath.Join(dir, "runs.db")
	trades := filepath.Join(dir, "trades.csv")

	out, err := execute(t, "run", "--db", db, "-d", data, "-s", "ma_crossover",
		"-p", "fast_period=3", "-p", "slow_period=8", "--save", "--trades-out", trades)
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy: ma_crossover fast_period=3 slow_period=8")
	assert.Contains(t, out, "Total Return")
	assert.FileExists(t, trades)

	m := regexp.MustCompile(`Run saved as (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	id := m[1]

	out, err = execute(t, "report", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "ma_crossover")

	out, err = execute(t, "report", "--db", db, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+id)
	assert.Contains(t, out, "Final Equity")

	_, err = execute(t, "report", "--db", db, "01J00000000000000000000000")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRunCommandErrors(t *testing.T) {
	dir := t.TempDir()
	data := writeSineBars(t, dir, 50)

	_, err := execute(t, "run", "-d", data, "-s", "does_not_exist")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = execute(t, "run")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	_, err = execute(t, "run", "-d", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

const sweepFile = `
strategy: ma_crossover
params:
  allow_short: 1
sweep:
  - {name: fast_period, min: 3, max: 5, step: 1, int: true}
  - {name: slow_period, min: 10, max: 20, step: 10, int: true}
`

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeSineBars(t, dir, 200)
	runFile := filepath.Join(dir, "sweep.yaml")
	require.NoError(t, os.WriteFile(runFile, []byte(sweepFile), 0644))

	out, err := execute(t, "sweep", "-c", runFile, "-d", data, "-w", "2", "--top", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "6 combinations evaluated")
	assert.Contains(t, out, "Rank")

	out, err = execute(t, "sweep", "-c", runFile, "-d", data, "--folds", "2", "--train-ratio", "0.7")
	require.NoError(t, err)
	assert.Contains(t, out, "Train Score")
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-02-03T04:05:06+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 3, 2, 5, 6, 0, time.UTC), d)

	_, err = parseDate("yesterday")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}
