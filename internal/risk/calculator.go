package risk

import (
	"fmt"
	"math"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
)

const (
	// DefaultMaintenanceMarginRate is used by Metrics when the input leaves it nil.
	DefaultMaintenanceMarginRate = 0.05
	// DefaultHorizonPeriods is the liquidation-probability horizon used by Metrics when unset.
	DefaultHorizonPeriods = 24
	// FundingIntervalHours is the settlement interval funding rates are quoted for.
	FundingIntervalHours = 8
)

// RiskInput describes a single leveraged position snapshot.
type RiskInput struct {
	Side                  domain.Side
	EntryPrice            float64
	CurrentPrice          float64
	SizeUSD               float64
	Leverage              float64
	FundingRate           float64 // Per funding interval (8h)
	Volatility            float64 // Per-period volatility of log price (e.g. hourly)
	MaintenanceMarginRate *float64 // nil selects DefaultMaintenanceMarginRate; zero is a valid rate
	HorizonPeriods        float64 // Periods over which liquidation probability is evaluated
}

// RiskSnapshot is derived on demand from a position and current market state. Never stored.
type RiskSnapshot struct {
	LiquidationPrice       float64
	LiquidationDistancePct float64
	LiquidationProbability float64
	MaxLossUSD             float64
	MaxLossPct             float64
	FundingCostHourly      float64
	FundingCostDaily       float64
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ports.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LiquidationPrice returns the price at which equity hits the maintenance margin floor.
func LiquidationPrice(entryPrice float64, side domain.Side, leverage, maintenanceMarginRate float64) (float64, error) {
	if !finite(entryPrice, leverage, maintenanceMarginRate) {
		return 0, invalid("non-finite liquidation input")
	}
	if entryPrice <= 0 {
		return 0, invalid("entry price %f must be positive", entryPrice)
	}
	if !side.Valid() {
		return 0, invalid("unknown side %q", side)
	}
	if leverage < 1 {
		return 0, invalid("leverage %f must be at least 1", leverage)
	}
	if maintenanceMarginRate < 0 || maintenanceMarginRate >= 1/leverage {
		return 0, invalid("maintenance margin rate %f must be in [0, %f)", maintenanceMarginRate, 1/leverage)
	}

	if side == domain.SideShort {
		return entryPrice * (1 + 1/leverage - maintenanceMarginRate), nil
	}
	return entryPrice * (1 - 1/leverage + maintenanceMarginRate), nil
}

// LiquidationDistancePct returns the signed percentage move left before liquidation.
// A negative value means the price is already past the liquidation price.
func LiquidationDistancePct(currentPrice, liquidationPrice float64, side domain.Side) (float64, error) {
	if !finite(currentPrice, liquidationPrice) || currentPrice <= 0 {
		return 0, invalid("current price %f must be positive", currentPrice)
	}
	if side == domain.SideShort {
		return (liquidationPrice - currentPrice) / currentPrice * 100, nil
	}
	return (currentPrice - liquidationPrice) / currentPrice * 100, nil
}

// LiquidationProbability estimates the probability that price touches the liquidation
// barrier within horizon periods, given a per-period volatility of log price.
//
// It uses the reflection principle for a driftless Brownian motion on log price:
// P(hit within T) = 2·Φ(−d/(σ√T)) = erfc(d/(σ√(2T))) with d = |ln(liq/current)|.
// The result increases with volatility and horizon and tends to 1 as d → 0.
func LiquidationProbability(currentPrice, liquidationPrice, volatility, horizon float64) (float64, error) {
	if !finite(currentPrice, liquidationPrice, volatility, horizon) {
		return 0, invalid("non-finite probability input")
	}
	if currentPrice <= 0 || liquidationPrice <= 0 {
		return 0, invalid("prices must be positive (current %f, liquidation %f)", currentPrice, liquidationPrice)
	}
	if volatility < 0 {
		return 0, invalid("volatility %f must not be negative", volatility)
	}
	if horizon <= 0 {
		return 0, invalid("horizon %f must be positive", horizon)
	}

	distance := math.Abs(math.Log(liquidationPrice / currentPrice))
	if distance == 0 {
		return 1, nil
	}
	if volatility == 0 {
		return 0, nil
	}

	p := math.Erfc(distance / (volatility * math.Sqrt(2*horizon)))
	return math.Max(0, math.Min(1, p)), nil
}

// FundingCost returns notional · rate · periods. A positive result is a cost to longs
// and income to shorts; use SignedFundingCost for a side-specific amount.
func FundingCost(positionNotional, fundingRate, periods float64) float64 {
	return positionNotional * fundingRate * periods
}

// SignedFundingCost returns what the given side pays (negative when it receives).
func SignedFundingCost(side domain.Side, positionNotional, fundingRate, periods float64) float64 {
	return side.Direction() * FundingCost(positionNotional, fundingRate, periods)
}

// PeriodicVolatility converts an annualized volatility to a per-period one.
func PeriodicVolatility(annualized, periodsPerYear float64) float64 {
	if periodsPerYear <= 0 {
		return 0
	}
	return annualized / math.Sqrt(periodsPerYear)
}

// Metrics composes the calculator into one RiskSnapshot for a position.
func Metrics(in RiskInput) (RiskSnapshot, error) {
	if in.Side == "" {
		in.Side = domain.SideLong
	}
	mmr := DefaultMaintenanceMarginRate
	if in.MaintenanceMarginRate != nil {
		mmr = *in.MaintenanceMarginRate
	}
	if in.HorizonPeriods == 0 {
		in.HorizonPeriods = DefaultHorizonPeriods
	}
	if !finite(in.SizeUSD, in.FundingRate) || in.SizeUSD <= 0 {
		return RiskSnapshot{}, invalid("position size %f must be positive", in.SizeUSD)
	}

	liq, err := LiquidationPrice(in.EntryPrice, in.Side, in.Leverage, mmr)
	if err != nil {
		return RiskSnapshot{}, err
	}
	dist, err := LiquidationDistancePct(in.CurrentPrice, liq, in.Side)
	if err != nil {
		return RiskSnapshot{}, err
	}

	prob := 1.0
	if dist > 0 {
		prob, err = LiquidationProbability(in.CurrentPrice, liq, in.Volatility, in.HorizonPeriods)
		if err != nil {
			return RiskSnapshot{}, err
		}
	}

	maxLoss := in.SizeUSD * math.Abs(in.EntryPrice-liq) / in.EntryPrice

	return RiskSnapshot{
		LiquidationPrice:       liq,
		LiquidationDistancePct: dist,
		LiquidationProbability: prob,
		MaxLossUSD:             maxLoss,
		MaxLossPct:             maxLoss / in.SizeUSD * 100,
		FundingCostHourly:      SignedFundingCost(in.Side, in.SizeUSD, in.FundingRate, 1.0/FundingIntervalHours),
		FundingCostDaily:       SignedFundingCost(in.Side, in.SizeUSD, in.FundingRate, 24.0/FundingIntervalHours),
	}, nil
}
