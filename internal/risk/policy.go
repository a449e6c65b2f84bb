package risk

import (
	"fmt"
	"math"
)

// Policy holds pre-trade limits for a single position.
type Policy struct {
	MaxLeverage               float64
	MaxPositionSizeUSD        float64
	MaxLiquidationProbability float64
	FundingRateThreshold      float64
}

// DefaultPolicy mirrors common conservative desk limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxLeverage:               5,
		MaxPositionSizeUSD:        100000,
		MaxLiquidationProbability: 0.10,
		FundingRateThreshold:      0.001,
	}
}

// Violation describes a failed policy criterion.
type Violation struct {
	Code string
	Msg  string
}

// Checks is the per-criterion outcome of Policy.Check.
type Checks struct {
	LeverageOK        bool
	PositionSizeOK    bool
	LiquidationProbOK bool
	FundingRateOK     bool
	Violations        []Violation
}

// Allowed reports whether every criterion passed.
func (c Checks) Allowed() bool {
	return len(c.Violations) == 0
}

func (c *Checks) add(code, msg string) {
	c.Violations = append(c.Violations, Violation{Code: code, Msg: msg})
}

// Check validates a position against the policy. It never fails; it reports.
func (p Policy) Check(sizeUSD, leverage, liquidationProbability, fundingRate float64) Checks {
	c := Checks{
		LeverageOK:        leverage <= p.MaxLeverage,
		PositionSizeOK:    sizeUSD <= p.MaxPositionSizeUSD,
		LiquidationProbOK: liquidationProbability < p.MaxLiquidationProbability,
		FundingRateOK:     math.Abs(fundingRate) <= p.FundingRateThreshold,
	}

	if !c.LeverageOK {
		c.add("LEVERAGE_TOO_HIGH", fmt.Sprintf("leverage %.2f exceeds max %.2f", leverage, p.MaxLeverage))
	}
	if !c.PositionSizeOK {
		c.add("SIZE_TOO_LARGE", fmt.Sprintf("position size %.2f exceeds max %.2f", sizeUSD, p.MaxPositionSizeUSD))
	}
	if !c.LiquidationProbOK {
		c.add("LIQUIDATION_RISK", fmt.Sprintf("liquidation probability %.2f%% not below %.2f%%",
			100*liquidationProbability, 100*p.MaxLiquidationProbability))
	}
	if !c.FundingRateOK {
		c.add("FUNDING_TOO_HIGH", fmt.Sprintf("funding rate %.4f%% exceeds %.4f%%",
			100*fundingRate, 100*p.FundingRateThreshold))
	}
	return c
}
