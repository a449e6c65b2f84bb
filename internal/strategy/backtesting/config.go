package backtesting

import (
	"fmt"
	"math"
	"strings"

	"perpBacktester/internal/adapters/logger"
	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/sizing"
)

// DefaultVolatilityLookback is the number of returns used for the sizer's volatility input.
const DefaultVolatilityLookback = 20

// Config holds the parameters of a single simulation run.
// Fee, slippage and margin rates are fractions (0.0004 = 4 bps).
type Config struct {
	InitialCapital        float64
	LeverageCap           float64
	Leverage              float64 // Default leverage for entries; 0 means LeverageCap
	MakerFeePct           float64
	TakerFeePct           float64
	SlippagePct           float64
	MaintenanceMarginRate float64
	PeriodsPerYear        float64
	Execution             domain.ExecutionType // Fee schedule for fills; taker when empty
	Sizer                 sizing.Func          // sizing.EquityMultiple() when nil
	VolatilityLookback    int
	Logger                ports.Logger
}

// DefaultConfig returns a taker-fee configuration resembling a USDT-M perpetual on hourly bars.
func DefaultConfig() Config {
	return Config{
		InitialCapital:        10000,
		LeverageCap:           3,
		MakerFeePct:           0.0002,
		TakerFeePct:           0.0004,
		SlippagePct:           0.0005,
		MaintenanceMarginRate: 0.005,
		PeriodsPerYear:        24 * 365,
		Execution:             domain.ExecutionTaker,
	}
}

// normalize fills defaults and validates. All problems are reported together.
func (c Config) normalize() (Config, error) {
	if c.Leverage == 0 {
		c.Leverage = c.LeverageCap
	}
	if c.Execution == "" {
		c.Execution = domain.ExecutionTaker
	}
	if c.Sizer == nil {
		c.Sizer = sizing.EquityMultiple()
	}
	if c.VolatilityLookback <= 0 {
		c.VolatilityLookback = DefaultVolatilityLookback
	}
	if c.Logger == nil {
		c.Logger = logger.Nop{}
	}

	var errs []string
	if !isFinite(c.InitialCapital) || c.InitialCapital <= 0 {
		errs = append(errs, fmt.Sprintf("initial capital must be positive, got %v", c.InitialCapital))
	}
	if !isFinite(c.LeverageCap) || c.LeverageCap < 1 {
		errs = append(errs, fmt.Sprintf("leverage cap must be at least 1, got %v", c.LeverageCap))
	}
	if !isFinite(c.Leverage) || c.Leverage < 1 || c.Leverage > c.LeverageCap {
		errs = append(errs, fmt.Sprintf("leverage must be in [1, %v], got %v", c.LeverageCap, c.Leverage))
	}
	for _, rate := range []struct {
		name string
		v    float64
	}{
		{"maker fee", c.MakerFeePct},
		{"taker fee", c.TakerFeePct},
		{"slippage", c.SlippagePct},
	} {
		if !isFinite(rate.v) || rate.v < 0 || rate.v >= 1 {
			errs = append(errs, fmt.Sprintf("%s must be in [0, 1), got %v", rate.name, rate.v))
		}
	}
	if c.LeverageCap >= 1 && (!isFinite(c.MaintenanceMarginRate) || c.MaintenanceMarginRate < 0 || c.MaintenanceMarginRate >= 1/c.LeverageCap) {
		errs = append(errs, fmt.Sprintf("maintenance margin rate must be in [0, %v), got %v", 1/c.LeverageCap, c.MaintenanceMarginRate))
	}
	if !isFinite(c.PeriodsPerYear) || c.PeriodsPerYear <= 0 {
		errs = append(errs, fmt.Sprintf("periods per year must be positive, got %v", c.PeriodsPerYear))
	}
	if c.Execution != domain.ExecutionTaker && c.Execution != domain.ExecutionMaker {
		errs = append(errs, fmt.Sprintf("unknown execution type %q", c.Execution))
	}

	if len(errs) > 0 {
		return c, fmt.Errorf("%w: %s", ports.ErrInvalidInput, strings.Join(errs, "; "))
	}
	return c, nil
}

func (c Config) feeRate() float64 {
	if c.Execution == domain.ExecutionMaker {
		return c.MakerFeePct
	}
	return c.TakerFeePct
}

// ValidateBars checks a bar series before simulation. Any problem fails the whole series.
func ValidateBars(bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty bar series", ports.ErrDataError)
	}
	for i, b := range bars {
		if !isFinite(b.Close) || b.Close <= 0 {
			return fmt.Errorf("%w: bar %d has missing or non-positive close %v", ports.ErrDataError, i, b.Close)
		}
		if !isFinite(b.Open) || !isFinite(b.High) || !isFinite(b.Low) || !isFinite(b.Volume) {
			return fmt.Errorf("%w: bar %d has non-finite OHLCV values", ports.ErrDataError, i)
		}
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Volume < 0 {
			return fmt.Errorf("%w: bar %d has negative OHLCV values", ports.ErrDataError, i)
		}
		if b.High > 0 && b.Low > 0 && b.High < b.Low {
			return fmt.Errorf("%w: bar %d high %v below low %v", ports.ErrDataError, i, b.High, b.Low)
		}
		if b.HasFunding() && !isFinite(*b.FundingRate) {
			return fmt.Errorf("%w: bar %d has non-finite funding rate", ports.ErrDataError, i)
		}
		if b.Time.IsZero() {
			return fmt.Errorf("%w: bar %d has no timestamp", ports.ErrDataError, i)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d timestamp %s not after %s", ports.ErrDataError, i,
				b.Time.Format("2006-01-02T15:04:05Z07:00"), bars[i-1].Time.Format("2006-01-02T15:04:05Z07:00"))
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
