package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Check(t *testing.T) {
	p := DefaultPolicy()

	ok := p.Check(50000, 3, 0.01, 0.0001)
	assert.True(t, ok.Allowed())
	assert.Empty(t, ok.Violations)
	assert.True(t, p.Check(50000, 3, 0.01, -0.0001).FundingRateOK)

	bad := p.Check(250000, 20, 0.4, -0.01)
	assert.False(t, bad.Allowed())
	assert.False(t, bad.LeverageOK)
	assert.False(t, bad.PositionSizeOK)
	assert.False(t, bad.LiquidationProbOK)
	assert.False(t, bad.FundingRateOK)

	codes := make([]string, 0, len(bad.Violations))
	for _, v := range bad.Violations {
		codes = append(codes, v.Code)
	}
	assert.Equal(t, []string{"LEVERAGE_TOO_HIGH", "SIZE_TOO_LARGE", "LIQUIDATION_RISK", "FUNDING_TOO_HIGH"}, codes)
}
